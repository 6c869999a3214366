/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"errors"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/blnkfinance/custody/model"
)

const dateFormat = time.RFC3339

var identityRules = []validation.Rule{
	validation.Length(1, model.MaxIdentityLength),
	validation.Match(regexp.MustCompile(`^[A-Za-z0-9_.:@-]+$`)).Error("must contain only letters, digits and _.:@-"),
}

func identity(required bool) []validation.Rule {
	if required {
		return append([]validation.Rule{validation.Required}, identityRules...)
	}
	return identityRules
}

func validateDateFormat(format, value string) error {
	_, err := time.Parse(format, value)
	if err != nil {
		return errors.New("please format dates as 'YYYY-MM-DDTHH:MM:SS+00:00' (e.g., 2024-04-22T15:28:03+00:00)")
	}
	return nil
}

func dateRule(value interface{}) error {
	dateStr, ok := value.(string)
	if !ok {
		return errors.New("invalid type for date")
	}
	return validateDateFormat(dateFormat, dateStr)
}

func (p *CreatePlatform) ValidateCreatePlatform() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Authority, identity(true)...),
		validation.Field(&p.Treasury, identity(true)...),
	)
}

func (f *UpdatePlatformFee) ValidateUpdatePlatformFee() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.FeeRateBps, validation.NotNil),
	)
}

func (w *CreateWager) ValidateCreateWager() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.WagerID, identity(false)...),
		validation.Field(&w.Stake, validation.Required),
		validation.Field(&w.GameType, validation.Required, validation.In(
			string(model.GameCoinFlip),
			string(model.GameRockPaperScissors),
			string(model.GameDiceRoll),
			string(model.GameGuessTheWord),
			string(model.GameTruthOrDare),
			string(model.GameCustom),
		)),
	)
}

func (w *CompleteWager) ValidateCompleteWager() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.Winner, identity(true)...),
	)
}

func (t *SendTip) ValidateSendTip() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Recipient, identity(true)...),
		validation.Field(&t.Amount, validation.Required),
		validation.Field(&t.PostID, validation.Required),
	)
}

func (e *CreateEvent) ValidateCreateEvent() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.EventID, identity(false)...),
		validation.Field(&e.Name, validation.Required),
		validation.Field(&e.TicketPrice, validation.Required),
		validation.Field(&e.MaxTickets, validation.Required),
		validation.Field(&e.EventDate, validation.Required, validation.By(dateRule)),
		validation.Field(&e.PublicSaleTime, validation.Required, validation.By(dateRule)),
	)
}

// Times parses the event and public sale dates. Call it after ValidateCreateEvent.
func (e *CreateEvent) Times() (eventDate, publicSale time.Time, err error) {
	if eventDate, err = time.Parse(dateFormat, e.EventDate); err != nil {
		return
	}
	publicSale, err = time.Parse(dateFormat, e.PublicSaleTime)
	return
}

func (p *PurchaseTickets) ValidatePurchaseTickets() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Count, validation.Required),
		validation.Field(&p.Tier, validation.Required, validation.In(
			string(model.TierBasic),
			string(model.TierPremium),
			string(model.TierGenesis),
		)),
	)
}

func paymentTypeRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.In(string(model.PaymentMonthly), string(model.PaymentYearly)),
	}
}

func (s *Subscribe) ValidateSubscribe() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.PaymentType, paymentTypeRules()...),
	)
}

func (c *ChangePaymentType) ValidateChangePaymentType() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PaymentType, paymentTypeRules()...),
	)
}
