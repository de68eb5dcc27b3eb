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
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vexogate/vexogate"
	"github.com/vexogate/vexogate/config"
	"github.com/vexogate/vexogate/internal/hooks"
	redis_db "github.com/vexogate/vexogate/internal/redis-db"
)

func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{
		conf.Worker.ScanQueue:    1,
		conf.Worker.WebhookQueue: 3,
	}
}

// initializeWorkerServer builds the asynq server. Two workers let callbacks go out while a
// scan batch is running; batches themselves never overlap thanks to the unique scan task.
func initializeWorkerServer(opt asynq.RedisClientOpt, queues map[string]int) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: 2,
		Queues:      queues,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logrus.WithField("task_type", task.Type()).WithError(err).Error("Task failed")
		}),
	})
}

func initializeTaskHandlers(app *gateInstance, mux *asynq.ServeMux) {
	var redisClient redis.UniversalClient
	if app.redis != nil {
		redisClient = app.redis.Client()
	}
	mux.HandleFunc(vexogate.TypeScanOrders, app.gate.ProcessScanTask)
	mux.Handle(hooks.TypeDeliverCallback, vexogate.NewWebhookProcessor(redisClient))
}

// initializeScheduler registers the periodic settlement scan.
func initializeScheduler(opt asynq.RedisClientOpt, conf *config.Configuration) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
		EnqueueErrorHandler: func(task *asynq.Task, opts []asynq.Option, err error) {
			logrus.WithField("task_type", task.Type()).WithError(err).Debug("Scan not enqueued")
		},
	})

	task, err := vexogate.NewScanTask(conf)
	if err != nil {
		return nil, err
	}
	spec := "@every " + conf.Worker.ScanEvery().String()
	entryID, err := scheduler.Register(spec, task)
	if err != nil {
		return nil, fmt.Errorf("failed to register scan task: %v", err)
	}
	logrus.WithFields(logrus.Fields{"entry_id": entryID, "spec": spec}).Info("Settlement scan scheduled")
	return scheduler, nil
}

func startMonitoring(opt asynq.RedisClientOpt, port string) {
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: opt,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", port)
		log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			log.Fatalf("could not start asynqmon server: %v", err)
		}
	}()
}

// workerCommands defines the "workers" command: the scheduled settlement scan plus merchant callback delivery.
func workerCommands(app *gateInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start vexogate workers",
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

			app.mustSetupGate(ctx, false)
			defer app.close()

			opt, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			if err != nil {
				log.Fatalf("error parsing redis url: %v", err)
			}

			srv := initializeWorkerServer(opt, initializeQueues(conf))
			mux := asynq.NewServeMux()
			initializeTaskHandlers(app, mux)

			scheduler, err := initializeScheduler(opt, conf)
			if err != nil {
				log.Fatal(err)
			}
			if err := scheduler.Start(); err != nil {
				log.Fatalf("could not start scheduler: %v", err)
			}
			defer scheduler.Shutdown()

			startMonitoring(opt, conf.Worker.MonitoringPort)

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
