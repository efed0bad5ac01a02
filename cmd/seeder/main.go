// cmd/seeder/main.go
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

// Applies schema and demo data. The main schema targets DATABASE_URL; the
// tenant schema targets TENANT_DATABASE_URL (one isolated DB per tenant).
func main() {
	seedAll("DATABASE_URL", []string{
		"seed/main_schema.sql",
		"seed/demo_tenant.sql",
	})
	seedAll("TENANT_DATABASE_URL", []string{
		"seed/tenant_schema.sql",
		"seed/demo_contacts.sql",
	})

	fmt.Println("Database seeding completed successfully!")
}

func seedAll(envKey string, files []string) {
	dsn := os.Getenv(envKey)
	if dsn == "" {
		log.Printf("%s not set, skipping %v", envKey, files)
		return
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("failed to read %s: %v", file, err)
		}

		if _, err = db.Exec(string(content)); err != nil {
			log.Fatalf("failed to execute %s: %v", file, err)
		}
		fmt.Printf("Seeded: %s\n", file)
	}
}
