package catalog

import (
	"context"
	"fmt"

	"github.com/parcabul/broker/internal/model"
)

// MockSource returns a fixed three-supplier radiator result for any criteria.
// It backs local development when no catalog URL is configured.
type MockSource struct{}

type mockOffer struct {
	stock     string
	price     float64
	condition string
	city      string
	supplier  string
	phone     string
	days      int
}

var mockOffers = []mockOffer{
	{"DM79431", 4500, "çıkma", "İstanbul", "Örnek Parçacı A", "905551112233", 2},
	{"17117585440-NEW", 6200, "sıfır", "Bursa", "Örnek Parçacı B", "905551114455", 1},
	{"17117585440-RF", 5200, "yenilenmiş", "İzmir", "Örnek Parçacı C", "905551116677", 3},
}

// Search implements Source.
func (MockSource) Search(_ context.Context, c model.Criteria) ([]model.CatalogMatch, error) {
	vehicle := fmt.Sprintf("%s %s %d", c.Brand, c.Model, c.Year)

	out := make([]model.CatalogMatch, 0, len(mockOffers))
	for _, o := range mockOffers {
		days := o.days
		out = append(out, model.CatalogMatch{
			PartName:           "Radyatör",
			OEM:                c.PartCode,
			StockCode:          o.stock,
			CompatibleVehicles: []string{vehicle},
			Price:              model.NewPrice(o.price),
			Currency:           model.DefaultCurrency,
			Condition:          o.condition,
			City:               o.city,
			SupplierName:       o.supplier,
			SupplierPhone:      o.phone,
			ShippingDays:       &days,
		})
	}
	return out, nil
}
