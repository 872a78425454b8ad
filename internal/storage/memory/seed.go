package memory

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// DemoUsers — пользователи для локального запуска.
func DemoUsers() []domain.User {
	return []domain.User{
		{ID: "admin", Username: "admin", Email: "admin@groceryapp.com", Phone: "+1234567890"},
		{ID: "testuser", Username: "testuser", Email: "test@example.com", Phone: "+9876543210"},
	}
}

// DemoProducts — стартовый каталог для локального запуска.
// Совпадает с миграцией 0002_demo_catalog для postgres.
func DemoProducts() []domain.Product {
	return []domain.Product{
		demoProduct("fresh-apples", "Fresh Apples", "120", 100, "0", "kg", "apples"),
		demoProduct("organic-bananas", "Organic Bananas", "60", 150, "0", "dozen", "bananas"),
		demoProduct("fresh-tomatoes", "Fresh Tomatoes", "40", 200, "10", "kg", "tomatoes"),
		demoProduct("fresh-milk", "Fresh Milk", "60", 50, "0", "litre", "milk"),
		demoProduct("greek-yogurt", "Greek Yogurt", "80", 40, "5", "pack", "yogurt"),
		demoProduct("whole-wheat-bread", "Whole Wheat Bread", "45", 30, "0", "loaf", "bread"),
		demoProduct("croissants", "Croissants", "60", 25, "15", "pack", "croissants"),
		demoProduct("potato-chips", "Potato Chips", "30", 100, "0", "pack", "chips"),
		demoProduct("mixed-nuts", "Mixed Nuts", "250", 40, "5", "pack", "nuts"),
		demoProduct("orange-juice", "Orange Juice", "90", 60, "0", "litre", "juice"),
		demoProduct("green-tea", "Green Tea", "150", 45, "10", "pack", "tea"),
		demoProduct("dish-soap", "Dish Soap", "85", 70, "0", "bottle", "dish-soap"),
		demoProduct("paper-towels", "Paper Towels", "120", 80, "5", "pack", "paper-towels"),
	}
}

func demoProduct(id, name, price string, stock int, discount, unit, image string) domain.Product {
	p := domain.Product{
		ID:        id,
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		Available: true,
		Unit:      unit,
		ImageURL:  "https://example.com/images/" + image + ".jpg",
	}
	if d := decimal.RequireFromString(discount); !d.IsZero() {
		p.DiscountPercentage = decimal.NewNullDecimal(d)
	}
	return p
}

// SeedDemoData заполняет каталог и справочник пользователей демо-данными.
func SeedDemoData(catalog *Catalog, users *UserDirectory) {
	for _, p := range DemoProducts() {
		catalog.Upsert(p)
	}
	for _, u := range DemoUsers() {
		users.Add(u)
	}
}
