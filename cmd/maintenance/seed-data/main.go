package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/busline/ticketing-backend/internal/config"
	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/models"
)

// Development seeding: demo accounts, promo codes, and a week of trips with
// seats. Run clear-data first for a clean slate; an already-populated
// database is refused unless -force is passed.

type route struct {
	origin      string
	destination string
	distanceKM  int
	durationMin int
}

var routes = []route{
	{"Colombo", "Kandy", 115, 180},
	{"Colombo", "Galle", 119, 150},
	{"Colombo", "Matara", 160, 180},
	{"Colombo", "Jaffna", 398, 480},
	{"Colombo", "Trincomalee", 257, 390},
	{"Colombo", "Anuradhapura", 205, 300},
	{"Colombo", "Badulla", 230, 420},
	{"Kandy", "Jaffna", 360, 420},
	{"Galle", "Matara", 45, 60},
}

var operators = []string{
	"SuperLine Express",
	"Southern Comfort Travels",
	"Hill Country Coaches",
	"Rajarata Express",
	"Ceylon Roadways",
	"Lanka Luxury Line",
}

// vehicleAmenities pairs each vehicle type with its amenity list, stored as
// a JSON array string the way the API writes it.
var vehicleAmenities = map[string]string{
	"AC Luxury":     `["WiFi","AC","USB Charging","Reclining Seats"]`,
	"Semi Luxury":   `["AC","Water Bottle"]`,
	"Express":       `["AC","Reclining Seats","Reading Light"]`,
	"Sleeper Coach": `["WiFi","AC","USB Charging","Blanket","Restroom"]`,
	"Super Luxury":  `["WiFi","AC","USB Charging","Refreshments","Entertainment"]`,
}

var vehicleTypes = []string{"AC Luxury", "Semi Luxury", "Express", "Sleeper Coach", "Super Luxury"}

func main() {
	var dbURLFlag string
	var days int
	var force bool
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.IntVar(&days, "days", 7, "how many days of departures to generate")
	flag.BoolVar(&force, "force", false, "seed even when the database already has users")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	dbCfg := config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	}

	db, err := database.NewConnection(dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	pg, ok := db.(*database.PostgresDB)
	if !ok {
		log.Fatal("failed to cast database connection to PostgresDB")
	}

	var existing int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&existing); err != nil {
		log.Fatalf("failed to check existing data: %v", err)
	}
	if existing > 0 && !force {
		log.Fatalf("database already has %d users; run clear-data first or pass -force", existing)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	users := database.NewUserRepository(db)
	trips := database.NewTripRepository(pg.DB)
	seats := database.NewTripSeatRepository(pg.DB)
	promos := database.NewPromoRepository(pg.DB)

	seedUsers(users)
	seedPromos(promos)
	seedTrips(trips, seats, rng, days)

	fmt.Println("\nSeeding complete.")
	fmt.Println("Demo admin:    admin@busline.lk / admin123")
	fmt.Println("Demo customer: rukmal.perera@example.com / customer123")
}

func seedUsers(repo *database.UserRepository) {
	fmt.Println("Seeding users...")

	// One hash per distinct password; bcrypt is deliberately slow and the
	// demo accounts share credentials anyway.
	adminHash := mustHash("admin123")
	supportHash := mustHash("support123")
	customerHash := mustHash("customer123")

	admins := 0
	customers := 0

	createUser(repo, "admin@busline.lk", adminHash, "System Administrator", "0771000001", models.UserRoleAdmin, &admins)
	createUser(repo, "support@busline.lk", supportHash, "Support Team", "0771000002", models.UserRoleAdmin, &admins)

	demoCustomers := []struct {
		email    string
		fullName string
		phone    string
	}{
		{"rukmal.perera@example.com", "Rukmal Perera", "0771234501"},
		{"tharindu.silva@example.com", "Tharindu Silva", "0712345602"},
		{"ishara.fernando@example.com", "Ishara Fernando", "0763456703"},
		{"nadeesha.jayawardena@example.com", "Nadeesha Jayawardena", "0754567804"},
		{"kasun.bandara@example.com", "Kasun Bandara", "0785678905"},
		{"dilini.wickramasinghe@example.com", "Dilini Wickramasinghe", "0706789006"},
		{"sampath.gunasekara@example.com", "Sampath Gunasekara", "0747890107"},
		{"amaya.rathnayake@example.com", "Amaya Rathnayake", "0798901208"},
	}
	for _, c := range demoCustomers {
		createUser(repo, c.email, customerHash, c.fullName, c.phone, models.UserRoleCustomer, &customers)
	}

	fmt.Printf("  created %d admins, %d customers\n", admins, customers)
}

func createUser(repo *database.UserRepository, email, hash, fullName, phone string, role models.UserRole, counter *int) {
	if _, err := repo.CreateUser(email, hash, fullName, &phone, role); err != nil {
		log.Fatalf("failed to create user %s: %v", email, err)
	}
	*counter++
}

func mustHash(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}
	return string(hash)
}

func seedPromos(repo *database.PromoRepository) {
	fmt.Println("Seeding promo codes...")

	now := time.Now()
	demoPromos := []models.PromoCode{
		{
			Code:               "WELCOME10",
			Description:        strPtr("Welcome offer for new riders"),
			DiscountPercentage: 10,
			MaxDiscountCents:   centsPtr(500_00),
			MinPurchaseCents:   centsPtr(1000_00),
			UsageLimit:         intPtr(100),
			UsagePerUser:       intPtr(1),
			ValidFrom:          now.AddDate(0, 0, -30),
			ValidUntil:         now.AddDate(0, 0, 60),
			IsActive:           true,
		},
		{
			Code:               "AVURUDU15",
			Description:        strPtr("New year season special"),
			DiscountPercentage: 15,
			MaxDiscountCents:   centsPtr(1000_00),
			MinPurchaseCents:   centsPtr(1500_00),
			UsageLimit:         intPtr(500),
			UsagePerUser:       intPtr(2),
			ValidFrom:          now.AddDate(0, 0, -10),
			ValidUntil:         now.AddDate(0, 0, 20),
			IsActive:           true,
		},
		{
			Code:               "WEEKEND20",
			Description:        strPtr("Weekend getaway discount"),
			DiscountPercentage: 20,
			MaxDiscountCents:   centsPtr(800_00),
			MinPurchaseCents:   centsPtr(2000_00),
			ValidFrom:          now.AddDate(0, 0, -5),
			ValidUntil:         now.AddDate(0, 0, 25),
			IsActive:           true,
		},
		{
			Code:               "EARLYBIRD",
			Description:        strPtr("Book early and save"),
			DiscountPercentage: 12,
			MaxDiscountCents:   centsPtr(600_00),
			MinPurchaseCents:   centsPtr(800_00),
			UsageLimit:         intPtr(200),
			UsagePerUser:       intPtr(3),
			ValidFrom:          now.AddDate(0, 0, -15),
			ValidUntil:         now.AddDate(0, 0, 45),
			IsActive:           true,
		},
		{
			Code:               "STUDENT25",
			Description:        strPtr("Student discount"),
			DiscountPercentage: 25,
			MaxDiscountCents:   centsPtr(1200_00),
			MinPurchaseCents:   centsPtr(1000_00),
			UsageLimit:         intPtr(300),
			UsagePerUser:       intPtr(5),
			ValidFrom:          now.AddDate(0, 0, -60),
			ValidUntil:         now.AddDate(0, 0, 120),
			IsActive:           true,
		},
		{
			// Expired and inactive, kept for exercising rejection paths.
			Code:               "EXPIRED50",
			Description:        strPtr("Lapsed promotion"),
			DiscountPercentage: 50,
			MaxDiscountCents:   centsPtr(2000_00),
			MinPurchaseCents:   centsPtr(500_00),
			UsageLimit:         intPtr(50),
			UsagePerUser:       intPtr(1),
			ValidFrom:          now.AddDate(0, 0, -90),
			ValidUntil:         now.AddDate(0, 0, -1),
			IsActive:           false,
		},
	}

	for i := range demoPromos {
		if err := repo.Create(&demoPromos[i]); err != nil {
			log.Fatalf("failed to create promo %s: %v", demoPromos[i].Code, err)
		}
	}

	fmt.Printf("  created %d promo codes\n", len(demoPromos))
}

func seedTrips(tripRepo *database.TripRepository, seatRepo *database.TripSeatRepository, rng *rand.Rand, days int) {
	fmt.Println("Seeding trips and seats...")

	now := time.Now()
	tripNumber := 1000
	tripCount := 0
	seatCount := 0

	create := func(r route, departure time.Time, status models.TripStatus) {
		operator := operators[rng.Intn(len(operators))]
		vehicle := vehicleTypes[rng.Intn(len(vehicleTypes))]
		amenities := vehicleAmenities[vehicle]

		// Roughly 8-12 rupees per kilometre, premium stock charging more.
		perKM := 800 + rng.Int63n(400)
		fare := int64(r.distanceKM) * perKM
		switch vehicle {
		case "Super Luxury", "Sleeper Coach":
			fare = fare * 3 / 2
		case "AC Luxury":
			fare = fare * 13 / 10
		}

		totalSeats := []int{40, 44, 48, 52}[rng.Intn(4)]

		trip := &models.Trip{
			TripNumber:      fmt.Sprintf("BL-%d", tripNumber),
			Origin:          r.origin,
			Destination:     r.destination,
			DepartureTime:   departure,
			ArrivalTime:     departure.Add(time.Duration(r.durationMin) * time.Minute),
			DurationMinutes: r.durationMin,
			BaseFareCents:   fare,
			TotalSeats:      totalSeats,
			Status:          status,
			OperatorName:    operator,
			VehicleType:     &vehicle,
			Amenities:       &amenities,
		}
		if err := tripRepo.Create(trip); err != nil {
			log.Fatalf("failed to create trip %s: %v", trip.TripNumber, err)
		}
		tripNumber++
		tripCount++

		created, err := seatRepo.CreateSeats(trip.ID, seatSpecs(vehicle, totalSeats))
		if err != nil {
			log.Fatalf("failed to create seats for trip %s: %v", trip.TripNumber, err)
		}
		seatCount += len(created)
	}

	for day := 0; day < days; day++ {
		for _, r := range routes {
			// Two morning departures and one evening departure per route.
			for i := 0; i < 2; i++ {
				hour := 6 + rng.Intn(6)
				minute := []int{0, 15, 30, 45}[rng.Intn(4)]
				departure := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()).AddDate(0, 0, day+1)
				create(r, departure, models.TripStatusScheduled)
			}
			hour := 18 + rng.Intn(5)
			minute := []int{0, 15, 30, 45}[rng.Intn(4)]
			departure := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()).AddDate(0, 0, day+1)
			create(r, departure, models.TripStatusScheduled)
		}
	}

	// A few non-scheduled trips so lists and filters show every status.
	create(routes[0], now.Add(30*time.Minute), models.TripStatusBoarding)
	create(routes[3], now.Add(-2*time.Hour), models.TripStatusInTransit)
	create(routes[1], now.AddDate(0, 0, -1), models.TripStatusCompleted)

	fmt.Printf("  created %d trips with %d seats\n", tripCount, seatCount)
}

// seatSpecs lays out the cabin: sleeper coaches get lower/upper bunks, every
// other vehicle gets four-abreast rows A1..A4 onward. The first eight seats
// sell as business class at a 1.5x multiplier.
func seatSpecs(vehicle string, totalSeats int) []models.SeatSpec {
	specs := make([]models.SeatSpec, 0, totalSeats)
	for i := 0; i < totalSeats; i++ {
		var number string
		if vehicle == "Sleeper Coach" {
			half := totalSeats / 2
			if i < half {
				number = fmt.Sprintf("L%d", i+1)
			} else {
				number = fmt.Sprintf("U%d", i-half+1)
			}
		} else {
			number = fmt.Sprintf("%c%d", rune('A'+i/4), i%4+1)
		}

		class := string(models.SeatClassEconomy)
		multiplier := 1.0
		if i < 8 {
			class = string(models.SeatClassBusiness)
			multiplier = 1.5
		}

		specs = append(specs, models.SeatSpec{
			SeatNumber:      number,
			SeatClass:       class,
			PriceMultiplier: multiplier,
		})
	}
	return specs
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func centsPtr(n int64) *int64 { return &n }
