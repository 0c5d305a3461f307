package strategy

// Default returns the registry of built-in site strategies. Selector sets
// favour stable, semantic hooks (data attributes, aria labels) over styled
// class names, which churn with every redesign.
func Default() *Registry {
	return NewRegistry(
		&Strategy{
			Key:    "skyscanner",
			Vendor: "SK",
			Hosts:  []string{"skyscanner.net", "skyscanner.com", "skyscanner.de", "skyscanner.fr", "skyscanner.es"},
			Groups: []SelectorGroup{
				{Name: "results", Selectors: []string{`[class*="Price_mainPrice"]`, `[data-testid="price"]`}},
				{Name: "summary", Selectors: []string{`[class*="TotalPrice"]`, `[aria-label*="price"]`}},
			},
		},
		&Strategy{
			Key:    "kayak",
			Vendor: "KY",
			Hosts:  []string{"kayak.com", "kayak.co.uk", "kayak.de", "kayak.fr"},
			Groups: []SelectorGroup{
				{Name: "results", Selectors: []string{`[class*="price-text"]`, `[data-test-id="price"]`}},
				{Name: "best", Selectors: []string{`[class*="bestPrice"]`}},
			},
		},
		&Strategy{
			Key:    "expedia",
			Vendor: "EX",
			Hosts:  []string{"expedia.com", "expedia.co.uk", "expedia.de"},
			Groups: []SelectorGroup{
				{Name: "results", Selectors: []string{`[data-test-id="listing-price-dollars"]`, `[class*="uitk-lockup-price"]`}},
			},
		},
		&Strategy{
			Key:    "google-flights",
			Vendor: "GF",
			Hosts:  []string{"google.com", "google.co.uk"},
			Groups: []SelectorGroup{
				{Name: "results", Selectors: []string{`[aria-label*="pounds"]`, `[aria-label*="price"]`, `span[data-gs]`}},
			},
		},
		&Strategy{
			Key:    "ryanair",
			Vendor: "FR",
			Hosts:  []string{"ryanair.com"},
			Groups: []SelectorGroup{
				{Name: "fares", Selectors: []string{`[data-e2e="fare-price"]`, `.fare-card__price`, `flights-price`}},
			},
		},
		&Strategy{
			Key:    "easyjet",
			Vendor: "U2",
			Hosts:  []string{"easyjet.com"},
			Groups: []SelectorGroup{
				{Name: "fares", Selectors: []string{`[data-testid="flight-price"]`, `.price-container .price`}},
			},
		},
		&Strategy{
			Key:    "british-airways",
			Vendor: "BA",
			Hosts:  []string{"britishairways.com"},
			Groups: []SelectorGroup{
				{Name: "fares", Selectors: []string{`[class*="flight-price"]`, `[data-price]`, `.basket-total .amount`}},
			},
		},
	)
}
