package enums

// StockStatus is used for variations that do not track a quantity.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "IN_STOCK"
	StockStatusOutOfStock StockStatus = "OUT_OF_STOCK"
	StockStatusBackorder  StockStatus = "ON_BACKORDER"
)

func (s StockStatus) String() string {
	return string(s)
}
