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

package custody

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/model"
)

// SystemCaller is recorded as the trigger of transitions started by deadline processing.
const SystemCaller = "custody:system"

// ProcessDeadline applies the time-triggered transition of an instance whose deadline passed.
// It returns nil when there is nothing to do: the instance moved on, or its deadline was
// pushed back by a later transition.
func (c *Custody) ProcessDeadline(ctx context.Context, instanceID string) error {
	inst, err := c.datasource.GetInstance(ctx, instanceID)
	if err != nil {
		if apierror.IsCode(err, apierror.ErrNotFound) {
			logrus.Warnf("deadline for unknown instance %s dropped", instanceID)
			return nil
		}
		return err
	}
	if !model.Expirable(inst.Kind, inst.Status) {
		return nil
	}

	switch inst.Kind {
	case model.KindWager:
		_, err = c.ExpireWager(ctx, instanceID, SystemCaller)
	case model.KindSubscription:
		_, err = c.CheckSubscription(ctx, instanceID)
	default:
		return nil
	}
	if apierror.IsCode(err, apierror.ErrTiming) || apierror.IsCode(err, apierror.ErrStateConflict) {
		logrus.Infof("deadline of %s not applicable: %v", instanceID, err)
		return nil
	}
	return err
}

// ProcessDeadlineTask is the asynq handler of the deadline queue.
func (c *Custody) ProcessDeadlineTask(ctx context.Context, task *asynq.Task) error {
	var payload DeadlinePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Errorf("Error unmarshaling deadline payload: %v", err)
		return err
	}
	return c.ProcessDeadline(ctx, payload.InstanceID)
}

// SweepDue processes up to limit instances whose deadline has passed. It returns how many
// were processed without error.
func (c *Custody) SweepDue(ctx context.Context, limit int) (int, error) {
	ctx, span := tracer.Start(ctx, "Sweeping due instances")
	defer span.End()

	due, err := c.datasource.ListDueInstances(ctx, c.clock.Now().UTC(), limit)
	if err != nil {
		return 0, logAndRecordError(span, "listing due instances failed: ", err)
	}

	processed := 0
	for _, inst := range due {
		if err := c.ProcessDeadline(ctx, inst.InstanceID); err != nil {
			logrus.Errorf("sweep: instance %s: %v", inst.InstanceID, err)
			continue
		}
		processed++
	}
	if len(due) > 0 {
		logrus.Infof("sweep processed %d of %d due instances", processed, len(due))
	}
	return processed, nil
}
