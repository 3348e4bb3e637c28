package domain

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"
)

var phonePattern = regexp.MustCompile(`^0\d{9}$`)

// ValidPhone reports whether phone is a leading 0 followed by nine digits.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ValidateCustomer checks the contact fields the checkout form requires.
func ValidateCustomer(c Customer, method ShippingMethod) *ValidationError {
	verr := NewValidationError()
	if strings.TrimSpace(c.Name) == "" {
		verr.Add("name", "name is required")
	}
	if !ValidPhone(c.Phone) {
		verr.Add("phone", "phone must be 0 followed by 9 digits")
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			verr.Add("email", "email is malformed")
		}
	}
	if c.WilayaID <= 0 {
		verr.Add("wilaya", "wilaya is required")
	}
	if !method.Valid() {
		verr.Add("shippingMethod", "shipping method must be home or desk")
	} else if method.RequiresAddress() && strings.TrimSpace(c.Address) == "" {
		verr.Add("address", "address is required for home delivery")
	}
	return verr
}

// ValidateItems checks line items are well formed; availability is checked elsewhere.
func ValidateItems(items []LineItem) *ValidationError {
	verr := NewValidationError()
	if len(items) == 0 {
		verr.Add("items", "at least one item is required")
		return verr
	}
	for i, item := range items {
		field := "items[" + strconv.Itoa(i) + "]"
		switch {
		case item.ProductID == "":
			verr.Add(field, "product id is required")
		case item.Size == "" || item.Color == "":
			verr.Add(field, "size and color are required")
		case item.Quantity <= 0:
			verr.Add(field, "quantity must be positive")
		case item.Quantity > MaxStockQuantity:
			verr.Add(field, "quantity must be at most "+strconv.Itoa(MaxStockQuantity))
		case item.UnitPrice.IsNegative():
			verr.Add(field, "unit price cannot be negative")
		}
	}
	return verr
}

// Validate returns a *ValidationError or nil.
func (r CreateOrderRequest) Validate() error {
	verr := ValidateCustomer(r.Customer, r.ShippingMethod)
	for field, msg := range ValidateItems(r.Items).Fields {
		verr.Add(field, msg)
	}
	return verr.OrNil()
}
