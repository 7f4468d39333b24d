package models

// CreditPackage is a fixed purchasable bundle. Prices are USD cents.
type CreditPackage struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Credits int    `json:"credits"`
	Price   int    `json:"price"`
	Popular bool   `json:"popular"`
}

// CreditPackages is the catalog shown on the purchase page. IDs are stable:
// they are embedded in payment metadata.
var CreditPackages = []CreditPackage{
	{ID: "credits_10", Name: "10 Credits", Credits: 10, Price: 299},
	{ID: "credits_25", Name: "25 Credits", Credits: 25, Price: 599, Popular: true},
	{ID: "credits_50", Name: "50 Credits", Credits: 50, Price: 999},
	{ID: "credits_100", Name: "100 Credits", Credits: 100, Price: 1799},
}

// PackageByID returns the package with the given id, or nil.
func PackageByID(id string) *CreditPackage {
	for i := range CreditPackages {
		if CreditPackages[i].ID == id {
			return &CreditPackages[i]
		}
	}
	return nil
}

// generationCosts maps a template style to its credit cost. Styles with
// image uploads cost more.
var generationCosts = map[string]int{
	"sign":             1,
	"bophouse":         1,
	"bophouse-new":     1,
	"liv":              1,
	"liv-digital":      1,
	"poppy":            1,
	"booty":            1,
	"double-monkey":    1,
	"three-cats":       1,
	"times-square":     2,
	"times-square-new": 3,
}

// GenerationCost returns the credit cost for a style, defaulting to 1 for
// unknown styles.
func GenerationCost(style string) int {
	if cost, ok := generationCosts[style]; ok {
		return cost
	}
	return 1
}

// KeyTierCredits returns the credit grant for a key type when the key row
// itself carries no explicit value.
func KeyTierCredits(keyType string) int {
	switch keyType {
	case "BASIC":
		return 10
	case "STANDARD":
		return 25
	case "PREMIUM":
		return 50
	case "UNLIMITED":
		return 100
	default:
		return 5
	}
}

// KeyTypes lists the tiers the admin key generator accepts.
var KeyTypes = []string{"BASIC", "STANDARD", "PREMIUM", "UNLIMITED"}

// ValidKeyType reports whether keyType is a known tier.
func ValidKeyType(keyType string) bool {
	for _, t := range KeyTypes {
		if t == keyType {
			return true
		}
	}
	return false
}
