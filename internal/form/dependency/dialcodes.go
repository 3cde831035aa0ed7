package dependency

import (
	"strings"

	"golang.org/x/text/language"
)

// dialCodes maps ISO 3166-1 alpha-2 regions to international dialing prefixes.
var dialCodes = map[string]string{
	"AR": "+54", "AT": "+43", "AU": "+61", "BE": "+32", "BO": "+591",
	"BR": "+55", "CA": "+1", "CH": "+41", "CL": "+56", "CN": "+86",
	"CO": "+57", "CR": "+506", "CU": "+53", "CZ": "+420", "DE": "+49",
	"DK": "+45", "DO": "+1", "EC": "+593", "EG": "+20", "ES": "+34",
	"FI": "+358", "FR": "+33", "GB": "+44", "GR": "+30", "GT": "+502",
	"HN": "+504", "HU": "+36", "IE": "+353", "IL": "+972", "IN": "+91",
	"IT": "+39", "JP": "+81", "KR": "+82", "MA": "+212", "MX": "+52",
	"NG": "+234", "NI": "+505", "NL": "+31", "NO": "+47", "NZ": "+64",
	"PA": "+507", "PE": "+51", "PH": "+63", "PL": "+48", "PR": "+1",
	"PT": "+351", "PY": "+595", "RO": "+40", "RU": "+7", "SE": "+46",
	"SG": "+65", "SV": "+503", "TR": "+90", "UA": "+380", "US": "+1",
	"UY": "+598", "VE": "+58", "ZA": "+27",
}

// DialCode returns the dialing prefix for a country given as an alpha-2,
// alpha-3 or numeric ISO 3166 code.
func DialCode(country string) (string, bool) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return "", false
	}
	region, err := language.ParseRegion(country)
	if err != nil || !region.IsCountry() {
		return "", false
	}
	code, ok := dialCodes[region.String()]
	return code, ok
}
