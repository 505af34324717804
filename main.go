package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"clinicerp/m/internal/api"
	"clinicerp/m/internal/config"
	"clinicerp/m/internal/database"
	"clinicerp/m/internal/migrations"
	"clinicerp/m/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)
	seed.LoadMedicines(db, "assets/medicines.csv")
	seed.LoadInteractions(db, "assets/interactions.csv")

	handler := api.New(db, cfg.Secret)

	log.Printf("clinic ERP server starting on :%s", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
