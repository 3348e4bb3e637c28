package domain

import "fmt"

// ItemCheck is the verdict for one requested line item.
type ItemCheck struct {
	Item      LineItem `json:"item"`
	Requested int      `json:"requested"`
	Available int      `json:"available"`
	OK        bool     `json:"ok"`
}

// Message renders the shortfall the way the checkout form shows it.
func (c ItemCheck) Message() string {
	if c.OK {
		return ""
	}
	if c.Available == 0 {
		return fmt.Sprintf("%s (%s/%s) is out of stock", c.Item.ProductID, c.Item.Size, c.Item.Color)
	}
	return fmt.Sprintf("%s (%s/%s): only %d available, %d requested",
		c.Item.ProductID, c.Item.Size, c.Item.Color, c.Available, c.Requested)
}

// ValidationResult is produced fresh for every checkout attempt and never cached.
type ValidationResult struct {
	Items []ItemCheck `json:"items"`
	OK    bool        `json:"ok"`
}

// Shortfalls returns only the failing items.
func (r ValidationResult) Shortfalls() []ItemCheck {
	var out []ItemCheck
	for _, c := range r.Items {
		if !c.OK {
			out = append(out, c)
		}
	}
	return out
}
