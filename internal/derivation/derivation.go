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

// Package derivation computes the custody address of a workflow instance.
//
// An address is the keyed hash of a domain separator (the workflow kind), the instance
// seeds and a one-byte bump. Bumps are tried from 255 downwards and the first candidate
// that is not a valid ed25519 point is accepted, so no private key can exist for it.
// The same inputs always give the same address and bump.
//
// Moving value out of a custody address requires an Authority, which only the Deriver
// can mint and only for an address it derived itself.
package derivation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/model"
)

const (
	MaxSeeds       = 16
	MaxSeedLength  = 64
	MinSecretBytes = 32

	addressMarker   = "CustodyDerivedAddress"
	authorityMarker = "CustodyAuthority"
)

var ErrNoOffCurveAddress = errors.New("no off-curve custody address for seeds")

// Address is a derived custody address.
type Address struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

// Authority is the delegated signing right over one custody address. It is never
// serialized; holding one means the Deriver vouched for the address.
type Authority struct {
	address string
	bump    uint8
	token   []byte
}

func (a Authority) Address() string { return a.address }

func (a Authority) Bump() uint8 { return a.bump }

type Deriver struct {
	secret []byte
}

func NewDeriver(secret []byte) (*Deriver, error) {
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf("derivation secret must be at least %d bytes", MinSecretBytes)
	}
	return &Deriver{secret: append([]byte(nil), secret...)}, nil
}

// Derive returns the address for kind and seeds. It fails closed on malformed input.
func (d *Deriver) Derive(kind model.Kind, seeds ...[]byte) (Address, error) {
	if !kind.Valid() {
		return Address{}, apierror.Validation("unknown workflow kind %q", kind)
	}
	if len(seeds) == 0 {
		return Address{}, apierror.Validation("custody derivation needs at least one seed")
	}
	if len(seeds) > MaxSeeds {
		return Address{}, apierror.Validation("custody derivation takes at most %d seeds", MaxSeeds)
	}
	for i, s := range seeds {
		if len(s) == 0 || len(s) > MaxSeedLength {
			return Address{}, apierror.Validation("seed %d must be 1-%d bytes", i, MaxSeedLength)
		}
	}

	for bump := 255; bump >= 0; bump-- {
		candidate := d.candidate(kind, seeds, uint8(bump))
		if onCurve(candidate) {
			continue
		}
		return Address{Address: hex.EncodeToString(candidate), Bump: uint8(bump)}, nil
	}
	return Address{}, ErrNoOffCurveAddress
}

// ForInstance derives the custody address of an instance from its kind and id.
func (d *Deriver) ForInstance(kind model.Kind, instanceID string) (Address, error) {
	return d.Derive(kind, []byte(instanceID))
}

// Authorize re-derives the custody address of an instance and returns the authority over
// it when it matches the recorded address and bump.
func (d *Deriver) Authorize(kind model.Kind, instanceID, address string, bump uint8) (Authority, error) {
	derived, err := d.ForInstance(kind, instanceID)
	if err != nil {
		return Authority{}, err
	}
	if !hmac.Equal([]byte(derived.Address), []byte(address)) || derived.Bump != bump {
		return Authority{}, apierror.Unauthorized("custody account %s is not derived from instance %s", address, instanceID)
	}
	return Authority{address: derived.Address, bump: derived.Bump, token: d.capability(derived.Address, derived.Bump)}, nil
}

// Verify reports whether a was minted by this Deriver for address.
func (d *Deriver) Verify(a Authority, address string) bool {
	if a.address != address || len(a.token) == 0 {
		return false
	}
	return hmac.Equal(a.token, d.capability(a.address, a.bump))
}

func (d *Deriver) candidate(kind model.Kind, seeds [][]byte, bump uint8) []byte {
	mac := hmac.New(sha256.New, d.secret)
	writeField(mac, []byte(kind))
	for _, s := range seeds {
		writeField(mac, s)
	}
	mac.Write([]byte{bump})
	mac.Write([]byte(addressMarker))
	return mac.Sum(nil)
}

func (d *Deriver) capability(address string, bump uint8) []byte {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write([]byte(authorityMarker))
	writeField(mac, []byte(address))
	mac.Write([]byte{bump})
	return mac.Sum(nil)
}

type writer interface {
	Write(p []byte) (int, error)
}

func writeField(w writer, b []byte) {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(b)))
	_, _ = w.Write(n[:])
	_, _ = w.Write(b)
}

func onCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
