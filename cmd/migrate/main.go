package main

import (
	"log"
	"os"

	"exam-proctor-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(dsn, true)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	// 3. Extensions (gen_random_uuid)
	log.Println("Step 1: Setting up Extensions...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warn: Failed to create pgcrypto extension: %v. Continuing...", err)
	}

	// 4. AutoMigrate
	log.Println("Step 2: Running AutoMigrate...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Error: %v", err)
	}

	// 5. Views
	log.Println("Step 3: Creating Views...")
	postMigrationSQL := []string{
		`CREATE OR REPLACE VIEW session_activity_summary AS
		 SELECT session_id, exam_id, student_id, activity_type,
		        COUNT(*) AS occurrences,
		        MAX(confidence_score) AS max_confidence,
		        COUNT(evidence_id) AS evidence_count,
		        MIN("timestamp") AS first_seen,
		        MAX("timestamp") AS last_seen
		 FROM monitoring_logs
		 GROUP BY session_id, exam_id, student_id, activity_type;`,
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("✅ Success: Database migration completed successfully via GORM.")
}
