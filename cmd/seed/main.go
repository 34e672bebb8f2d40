package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
)

var treatments = []appointment.TreatmentType{
	appointment.TreatmentGeneralConsultation,
	appointment.TreatmentMetalBraces,
	appointment.TreatmentEstheticBraces,
	appointment.TreatmentClearAligners,
	appointment.TreatmentPediatric,
}

var staff = []appointment.StaffID{"staff-1", "staff-2", "staff-3"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	// Seeding never needs the Redis locks.
	cfg.BookingMode = config.BookingModeBaseline

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "seed")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}

	svc := appointment.NewService(appointment.NewPgRepository(pool), nil, cfg, zap.NewNop())
	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	patients, err := seedPatients(ctx, logger, svc.Patients(), faker, getInt("SEED_PATIENTS", 200))
	if err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}
	if err := seedAppointments(ctx, logger, svc, faker, patients, getInt("SEED_APPOINTMENTS", 150), cfg.Location()); err != nil {
		logger.Fatal("seed appointments", zap.Error(err))
	}

	logger.Info("seed complete")
}

func seedPatients(ctx context.Context, logger *zap.Logger, svc *appointment.PatientService, faker *gofakeit.Faker, count int) ([]appointment.Patient, error) {
	logger.Info("seeding patients", zap.Int("count", count))

	out := make([]appointment.Patient, 0, count)
	for i := 0; i < count; i++ {
		p, _, err := svc.FindOrCreate(ctx, appointment.PatientInput{
			Name:  faker.Name(),
			Email: faker.Email(),
			Phone: faker.Numerify("+34 6## ### ###"),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, *p)

		if (i+1)%50 == 0 {
			logger.Info("patients seeded", zap.Int("done", i+1), zap.Int("total", count))
		}
	}
	return out, nil
}

// seedAppointments books future appointments on an hourly grid from 09:00 to
// 18:00, Monday to Saturday. Grid times already taken are skipped.
func seedAppointments(ctx context.Context, logger *zap.Logger, svc *appointment.Service, faker *gofakeit.Faker, patients []appointment.Patient, count int, loc *time.Location) error {
	logger.Info("seeding appointments", zap.Int("count", count))
	if len(patients) == 0 {
		return errors.New("no patients to book")
	}

	day := time.Now().In(loc)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	booked, skipped := 0, 0
	for booked < count {
		if day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
			continue
		}
		for hour := 9; hour <= 18 && booked < count; hour++ {
			if !faker.Bool() {
				continue
			}
			at := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, loc)
			p := patients[faker.Number(0, len(patients)-1)]
			owner := staff[faker.Number(0, len(staff)-1)]

			appt, err := svc.Create(ctx, owner, appointment.BookingInput{
				PatientID:       &p.ID,
				PatientName:     p.Name,
				PatientEmail:    p.Email,
				PatientPhone:    p.Phone,
				TreatmentType:   string(treatments[faker.Number(0, len(treatments)-1)]),
				AppointmentDate: &at,
			})
			if errors.Is(err, appointment.ErrTimeConflict) {
				skipped++
				continue
			}
			if err != nil {
				return err
			}
			booked++

			// Leave most bookings pending; confirm or cancel a share of them.
			switch faker.Number(0, 9) {
			case 0, 1, 2:
				_, err = svc.Confirm(ctx, owner, appt.ID)
			case 3:
				_, err = svc.Cancel(ctx, owner, appt.ID)
			}
			if err != nil {
				return err
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	logger.Info("appointments seeded", zap.Int("booked", booked), zap.Int("skipped", skipped))
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
