package deeplink

import (
	"net/url"
	"strconv"
	"strings"
)

// Resolver turns a provider code plus a search into a booking link. Known
// providers get a search-prefilled template; providers with only a homepage
// on file fall back to that.
type Resolver struct {
	templates map[string]string
	homepages map[string]string
}

// NewResolver builds a resolver from the built-in tables, with optional
// overrides layered on top. Override keys are provider codes.
func NewResolver(templates, homepages map[string]string) *Resolver {
	r := &Resolver{
		templates: make(map[string]string, len(builtinTemplates)+len(templates)),
		homepages: make(map[string]string, len(builtinHomepages)+len(homepages)),
	}
	for code, tmpl := range builtinTemplates {
		r.templates[code] = tmpl
	}
	for code, tmpl := range templates {
		r.templates[normalizeCode(code)] = tmpl
	}
	for code, home := range builtinHomepages {
		r.homepages[code] = home
	}
	for code, home := range homepages {
		r.homepages[normalizeCode(code)] = home
	}
	return r
}

// Resolve returns a booking URL for the provider and search, and whether the
// link is search-specific rather than a homepage. An unknown provider, or a
// template left with unfilled fields, yields ("", false) from the template
// path and falls through to the homepage table.
func (r *Resolver) Resolve(provider, origin, destination, date string, passengers int) (string, bool) {
	code := normalizeCode(provider)
	if passengers <= 0 {
		passengers = 1
	}

	if tmpl, ok := r.templates[code]; ok && origin != "" && destination != "" {
		link := strings.NewReplacer(
			"{orig}", url.QueryEscape(strings.ToUpper(origin)),
			"{dest}", url.QueryEscape(strings.ToUpper(destination)),
			"{date}", url.QueryEscape(date),
			"{passengers}", strconv.Itoa(passengers),
		).Replace(tmpl)

		if usable(link) {
			return link, true
		}
	}

	if home, ok := r.homepages[code]; ok {
		return home, false
	}
	return "", false
}

// Homepage returns the homepage for the provider, if known.
func (r *Resolver) Homepage(provider string) (string, bool) {
	home, ok := r.homepages[normalizeCode(provider)]
	return home, ok
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// usable rejects links where a field stayed unfilled (a template using a
// placeholder this resolver does not know) or that do not parse as absolute.
func usable(link string) bool {
	if strings.Contains(link, "{") || strings.Contains(link, "}") {
		return false
	}
	u, err := url.Parse(link)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// builtinTemplates are deep-link formats confirmed against each provider's
// live search pages. Dates are ISO yyyy-mm-dd unless the template reformats.
var builtinTemplates = map[string]string{
	"AA": "https://www.aa.com/booking/find-flights?tripType=oneWay&from={orig}&to={dest}&departDate={date}&passengers={passengers}",
	"DL": "https://www.delta.com/flight-search/book-a-flight?tripType=ONE_WAY&origin={orig}&destination={dest}&departureDate={date}&paxCount={passengers}",
	"UA": "https://www.united.com/en-us/book-flight?f={orig}&t={dest}&d={date}&tt=1&px={passengers}",
	"WN": "https://www.southwest.com/air/booking/select.html?originationAirportCode={orig}&destinationAirportCode={dest}&departureDate={date}&adultPassengersCount={passengers}&tripType=oneway",
	"B6": "https://www.jetblue.com/booking/flights?from={orig}&to={dest}&depart={date}&isMultiCity=false&noOfRoute=1&adults={passengers}",
	"AS": "https://www.alaskaair.com/planbook/flights?from={orig}&to={dest}&departure={date}&adults={passengers}",
	"BA": "https://www.britishairways.com/travel/book/public/en_gb?from={orig}&to={dest}&depDate={date}&adults={passengers}&oneWay=true",
	"AF": "https://wwws.airfrance.co.uk/search/offers?from={orig}&to={dest}&outboundDate={date}&pax={passengers}",
	"LH": "https://www.lufthansa.com/gb/en/flight-search?origin={orig}&destination={dest}&outboundDate={date}&adults={passengers}",
	"KL": "https://www.klm.co.uk/search/offers?origin={orig}&destination={dest}&outbound={date}&adults={passengers}",
	"FR": "https://www.ryanair.com/gb/en/trip/flights/select?adults={passengers}&dateOut={date}&originIata={orig}&destinationIata={dest}&isReturn=false",
	"U2": "https://www.easyjet.com/deeplink?origin={orig}&destination={dest}&outboundDate={date}&adults={passengers}",
	"EK": "https://www.emirates.com/uk/english/book/?from={orig}&to={dest}&departing={date}&adults={passengers}",
	"QR": "https://www.qatarairways.com/app/booking/flight-selection?fromStation={orig}&toStation={dest}&departing={date}&adults={passengers}&tripType=O",
	"SK": "https://www.skyscanner.net/transport/flights/{orig}/{dest}/{date}/?adults={passengers}",
	"KY": "https://www.kayak.com/flights/{orig}-{dest}/{date}?sort=bestflight_a",
	"EX": "https://www.expedia.com/Flights-Search?trip=oneway&leg1=from:{orig},to:{dest},departure:{date}TANYT&passengers=adults:{passengers}",
	"GF": "https://www.google.com/travel/flights?q=Flights%20from%20{orig}%20to%20{dest}%20on%20{date}",
}

var builtinHomepages = map[string]string{
	"AA": "https://www.aa.com",
	"DL": "https://www.delta.com",
	"UA": "https://www.united.com",
	"WN": "https://www.southwest.com",
	"B6": "https://www.jetblue.com",
	"AS": "https://www.alaskaair.com",
	"BA": "https://www.britishairways.com",
	"AF": "https://www.airfrance.com",
	"LH": "https://www.lufthansa.com",
	"KL": "https://www.klm.com",
	"FR": "https://www.ryanair.com",
	"U2": "https://www.easyjet.com",
	"EK": "https://www.emirates.com",
	"QR": "https://www.qatarairways.com",
	"SK": "https://www.skyscanner.net",
	"KY": "https://www.kayak.com",
	"EX": "https://www.expedia.com",
	"GF": "https://www.google.com/travel/flights",
}
