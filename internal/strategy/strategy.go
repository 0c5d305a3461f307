package strategy

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SelectorGroup is a named, ordered list of CSS selectors that locate price
// nodes for one part of a booking page (result list, summary, fare family).
type SelectorGroup struct {
	Name      string
	Selectors []string
}

// Strategy describes how to read prices out of one booking site. It is pure
// data: registering a new site is a new value, not new code.
type Strategy struct {
	// Key identifies the strategy in logs.
	Key string
	// Vendor is the 2-letter provider code reported with observations and
	// used to key the deep-link template table.
	Vendor string
	// Hosts are the registrable hostnames this strategy claims. Subdomains
	// fold onto them, so "www.skyscanner.net" resolves via "skyscanner.net".
	Hosts []string
	// Groups are tried in order; candidates from every group are kept.
	Groups []SelectorGroup
}

// ExtractCandidates gathers the text of every element matched by any
// selector in any group. Booking sites render several price nodes per page
// and the headline price is typically the minimum of all of them, so this
// deliberately does not stop at the first match.
func (s *Strategy) ExtractCandidates(doc *goquery.Document) []string {
	if doc == nil {
		return nil
	}

	var texts []string
	for _, group := range s.Groups {
		for _, selector := range group.Selectors {
			doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
				text := strings.TrimSpace(sel.Text())
				if text != "" {
					texts = append(texts, text)
				}
			})
		}
	}
	return texts
}

// Registry maps hostnames to extraction strategies.
type Registry struct {
	byHost map[string]*Strategy
}

// NewRegistry indexes the given strategies by host.
func NewRegistry(strategies ...*Strategy) *Registry {
	r := &Registry{byHost: make(map[string]*Strategy)}
	for _, s := range strategies {
		for _, host := range s.Hosts {
			r.byHost[strings.ToLower(host)] = s
		}
	}
	return r
}

// Resolve finds the strategy claiming the hostname. Leading subdomain labels
// are stripped until a registered host matches, so country and www prefixes
// do not need their own entries. ok is false for unsupported sites.
func (r *Registry) Resolve(hostname string) (*Strategy, bool) {
	host := strings.ToLower(hostname)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	for host != "" {
		if s, ok := r.byHost[host]; ok {
			return s, true
		}
		dot := strings.IndexByte(host, '.')
		if dot < 0 {
			break
		}
		host = host[dot+1:]
	}
	return nil, false
}

// Route is the origin/destination/date triple read off the page address.
type Route struct {
	Origin      string
	Destination string
	Date        string
}

var (
	originKeys = []string{"from", "origin", "departure", "orig", "originIata", "departureAirport"}
	destKeys   = []string{"to", "destination", "arrival", "dest", "destinationIata", "arrivalAirport"}
	dateKeys   = []string{"date", "departDate", "depDate", "outboundDate", "dateOut", "departure_date"}
)

// RouteFromURL extracts the searched route from the query string of a
// booking page address. Booking sites encode the search in the URL under a
// small family of parameter names; the first recognised key wins.
func RouteFromURL(u *url.URL) (Route, bool) {
	if u == nil {
		return Route{}, false
	}

	query := u.Query()
	route := Route{
		Origin:      firstParam(query, originKeys),
		Destination: firstParam(query, destKeys),
		Date:        firstParam(query, dateKeys),
	}
	if route.Origin == "" || route.Destination == "" {
		return Route{}, false
	}
	route.Origin = strings.ToUpper(route.Origin)
	route.Destination = strings.ToUpper(route.Destination)
	return route, true
}

func firstParam(query url.Values, keys []string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			return v
		}
	}
	return ""
}
