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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/custody"
	"github.com/blnkfinance/custody/config"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{
		conf.Queue.DeadlineQueue: 3,
		conf.Queue.WebhookQueue:  1,
	}
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := custody.RedisClientOpt(conf)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(redisOption, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Queues:      queues,
	}), nil
}

func initializeTaskHandlers(app *custodyInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(app.cnf.Queue.DeadlineQueue, app.processDeadline)
	mux.HandleFunc(app.cnf.Queue.WebhookQueue, custody.ProcessWebhook)
}

// processDeadline applies the time-triggered transition of one instance taken from the deadline queue.
func (app *custodyInstance) processDeadline(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("custody.deadlines.worker").Start(ctx, "Process Deadline From Redis Queue")
	defer span.End()

	return app.custody.ProcessDeadlineTask(ctx, t)
}

// startSweeper periodically processes overdue instances whose deadline task was lost.
func startSweeper(app *custodyInstance) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(app.cnf.Queue.SweepSchedule, func() {
		n, err := app.custody.SweepDue(context.Background(), app.cnf.Queue.SweepBatch)
		if err != nil {
			logrus.Errorf("deadline sweep failed: %v", err)
			return
		}
		if n > 0 {
			logrus.Infof(" [*] Sweep processed %d overdue instances", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %v", app.cnf.Queue.SweepSchedule, err)
	}
	c.Start()
	return c, nil
}

// workerCommands defines the "workers" command. The workers deliver webhooks, apply
// deadlines and run the overdue sweep.
func workerCommands(app *custodyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start custody workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := app.cnf

			shutdown, err := initializeTracing(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			srv, err := initializeWorkerServer(conf, initializeQueues(conf))
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(app, mux)

			sweeper, err := startSweeper(app)
			if err != nil {
				log.Fatal(err)
			}
			defer sweeper.Stop()

			redisOption, _ := custody.RedisClientOpt(conf)
			h := asynqmon.New(asynqmon.Options{
				RootPath:     "/monitoring",
				RedisConnOpt: redisOption,
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
