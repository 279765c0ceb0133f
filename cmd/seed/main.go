package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibook/slot-reservation/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 10)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedPractitioners(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d practitioners", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	for i := 0; i < count; i++ {
		id := uuid.NewString()
		name := "Dr. " + gofakeit.Name()
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]
		feeOnline := float64(gofakeit.Number(20, 80))
		feeInPerson := feeOnline + float64(gofakeit.Number(10, 50))

		_, err := pool.Exec(ctx, `
			INSERT INTO practitioners (id, name, specialty, fee_online, fee_in_person, active)
			VALUES ($1, $2, $3, $4, $5, TRUE)
		`, id, name, specialty, feeOnline, feeInPerson)
		if err != nil {
			return fmt.Errorf("insert practitioner: %w", err)
		}

		if err := seedWeeklyTemplate(ctx, pool, id); err != nil {
			return err
		}
	}
	return nil
}

// seedWeeklyTemplate gives each practitioner 30-minute consultation slots
// on weekdays, online in the morning and in-person in the afternoon.
func seedWeeklyTemplate(ctx context.Context, pool *pgxpool.Pool, practitionerID string) error {
	for weekday := 1; weekday <= 5; weekday++ {
		for hour := 9; hour < 12; hour++ {
			for _, half := range []int{0, 30} {
				if err := insertRule(ctx, pool, practitionerID, weekday, hour, half, "online"); err != nil {
					return err
				}
			}
		}
		for hour := 14; hour < 17; hour++ {
			for _, half := range []int{0, 30} {
				if err := insertRule(ctx, pool, practitionerID, weekday, hour, half, "in-person"); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func insertRule(ctx context.Context, pool *pgxpool.Pool, practitionerID string, weekday, hour, minute int, mode string) error {
	start := fmt.Sprintf("%02d:%02d", hour, minute)
	endHour, endMinute := hour, minute+30
	if endMinute >= 60 {
		endHour++
		endMinute -= 60
	}
	end := fmt.Sprintf("%02d:%02d", endHour, endMinute)

	_, err := pool.Exec(ctx, `
		INSERT INTO availability_rules (id, practitioner_id, weekday, start_time, end_time, mode)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`, uuid.NewString(), practitionerID, weekday, start, end, mode)
	if err != nil {
		return fmt.Errorf("insert availability rule: %w", err)
	}
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	for i := 0; i < count; i++ {
		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, name, email)
			VALUES ($1, $2, $3)
		`, uuid.NewString(), gofakeit.Name(), gofakeit.Email())
		if err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}
	}
	return nil
}
