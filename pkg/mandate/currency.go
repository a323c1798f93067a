package mandate

import "fmt"

// Cents represents currency in minor units (hundredths of a US Dollar).
// Integer arithmetic only; no floating point in money paths.
type Cents int64

// Dollar is one US Dollar in Cents.
const Dollar Cents = 100

// String implements fmt.Stringer, formatting the value as $X.XX.
func (c Cents) String() string {
	dollars := int64(c) / int64(Dollar)
	minor := int64(c) % int64(Dollar)
	if minor < 0 {
		minor = -minor
	}
	return fmt.Sprintf("$%d.%02d", dollars, minor)
}

// DefaultCurrency is the only currency the engine settles in.
const DefaultCurrency = "USD"
