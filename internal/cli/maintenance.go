package cli

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"quiz-arena-service/internal/app"
	redisstore "quiz-arena-service/internal/infra/redis"
)

// startMaintenance schedules sweeps of completed and idle sessions and, with
// Redis, refreshes room-code reservations of live sessions.
func startMaintenance(service *app.GameService, rooms *redisstore.SessionStore, every time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			if n := service.SweepCompleted(context.Background()); n > 0 {
				log.Printf("[scheduler] retired %d completed session(s)", n)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	if rooms != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(every),
			gocron.NewTask(func() {
				if err := rooms.KeepAlive(context.Background()); err != nil {
					log.Printf("[scheduler] refresh room reservations: %v", err)
				}
			}),
		)
		if err != nil {
			return nil, err
		}
	}

	sched.Start()
	return sched, nil
}
