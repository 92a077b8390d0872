package event_mapper

import (
	"time"
)

// windowsZones pairs Windows zone ids with their canonical IANA zone.
var windowsZones = [][2]string{
	{"UTC", "UTC"},
	{"GMT Standard Time", "Europe/London"},
	{"Greenwich Standard Time", "Atlantic/Reykjavik"},
	{"W. Europe Standard Time", "Europe/Berlin"},
	{"Central European Standard Time", "Europe/Warsaw"},
	{"Central Europe Standard Time", "Europe/Budapest"},
	{"Romance Standard Time", "Europe/Paris"},
	{"E. Europe Standard Time", "Europe/Chisinau"},
	{"FLE Standard Time", "Europe/Kiev"},
	{"GTB Standard Time", "Europe/Bucharest"},
	{"Russian Standard Time", "Europe/Moscow"},
	{"Turkey Standard Time", "Europe/Istanbul"},
	{"Israel Standard Time", "Asia/Jerusalem"},
	{"Egypt Standard Time", "Africa/Cairo"},
	{"South Africa Standard Time", "Africa/Johannesburg"},
	{"W. Central Africa Standard Time", "Africa/Lagos"},
	{"Arabian Standard Time", "Asia/Dubai"},
	{"Pakistan Standard Time", "Asia/Karachi"},
	{"India Standard Time", "Asia/Kolkata"},
	{"SE Asia Standard Time", "Asia/Bangkok"},
	{"China Standard Time", "Asia/Shanghai"},
	{"Singapore Standard Time", "Asia/Singapore"},
	{"Tokyo Standard Time", "Asia/Tokyo"},
	{"Korea Standard Time", "Asia/Seoul"},
	{"W. Australia Standard Time", "Australia/Perth"},
	{"E. Australia Standard Time", "Australia/Brisbane"},
	{"AUS Eastern Standard Time", "Australia/Sydney"},
	{"New Zealand Standard Time", "Pacific/Auckland"},
	{"Hawaiian Standard Time", "Pacific/Honolulu"},
	{"Alaskan Standard Time", "America/Anchorage"},
	{"Pacific Standard Time", "America/Los_Angeles"},
	{"US Mountain Standard Time", "America/Phoenix"},
	{"Mountain Standard Time", "America/Denver"},
	{"Central Standard Time", "America/Chicago"},
	{"Central Standard Time (Mexico)", "America/Mexico_City"},
	{"Eastern Standard Time", "America/New_York"},
	{"SA Pacific Standard Time", "America/Bogota"},
	{"Atlantic Standard Time", "America/Halifax"},
	{"E. South America Standard Time", "America/Sao_Paulo"},
	{"Argentina Standard Time", "America/Buenos_Aires"},
}

// ianaAliases maps further IANA zones onto a Windows id that already has a canonical zone.
var ianaAliases = map[string]string{
	"Etc/UTC":             "UTC",
	"Etc/GMT":             "UTC",
	"Europe/Dublin":       "GMT Standard Time",
	"Europe/Lisbon":       "GMT Standard Time",
	"Europe/Amsterdam":    "W. Europe Standard Time",
	"Europe/Rome":         "W. Europe Standard Time",
	"Europe/Vienna":       "W. Europe Standard Time",
	"Europe/Zurich":       "W. Europe Standard Time",
	"Europe/Stockholm":    "W. Europe Standard Time",
	"Europe/Oslo":         "W. Europe Standard Time",
	"Europe/Belgrade":     "Central European Standard Time",
	"Europe/Zagreb":       "Central European Standard Time",
	"Europe/Prague":       "Central Europe Standard Time",
	"Europe/Bratislava":   "Central Europe Standard Time",
	"Europe/Madrid":       "Romance Standard Time",
	"Europe/Brussels":     "Romance Standard Time",
	"Europe/Copenhagen":   "Romance Standard Time",
	"Europe/Helsinki":     "FLE Standard Time",
	"Europe/Kyiv":         "FLE Standard Time",
	"Europe/Vilnius":      "FLE Standard Time",
	"Europe/Athens":       "GTB Standard Time",
	"Asia/Calcutta":       "India Standard Time",
	"Asia/Hong_Kong":      "China Standard Time",
	"Australia/Melbourne": "AUS Eastern Standard Time",
	"America/Toronto":     "Eastern Standard Time",
	"America/Detroit":     "Eastern Standard Time",
	"America/Vancouver":   "Pacific Standard Time",
	"America/Winnipeg":    "Central Standard Time",
	"America/Edmonton":    "Mountain Standard Time",
}

var (
	windowsToIana = make(map[string]string, len(windowsZones))
	ianaToWindows = make(map[string]string, len(windowsZones)+len(ianaAliases))
)

func init() {
	for _, z := range windowsZones {
		windowsToIana[z[0]] = z[1]
		ianaToWindows[z[1]] = z[0]
	}
	for iana, windows := range ianaAliases {
		ianaToWindows[iana] = windows
	}
}

// WindowsToIana translates a Windows zone id. Names that are already valid IANA zones pass through.
func WindowsToIana(name string) (string, bool) {
	if iana, ok := windowsToIana[name]; ok {
		return iana, true
	}
	if isIana(name) {
		return name, true
	}
	return "", false
}

// IanaToWindows translates an IANA zone to the Windows id Graph expects. Valid IANA zones
// missing from the table pass through unchanged.
func IanaToWindows(name string) (string, bool) {
	if windows, ok := ianaToWindows[name]; ok {
		return windows, true
	}
	if _, ok := windowsToIana[name]; ok {
		return name, true
	}
	if isIana(name) {
		return name, true
	}
	return "", false
}

// ResolveZone loads a zone given either as an IANA name or as a Windows id.
func ResolveZone(name string) (*time.Location, bool) {
	if name == "" {
		return nil, false
	}
	if loc, err := time.LoadLocation(name); err == nil && name != "Local" {
		return loc, true
	}
	iana, ok := windowsToIana[name]
	if !ok {
		return nil, false
	}
	loc, err := time.LoadLocation(iana)
	if err != nil {
		return nil, false
	}
	return loc, true
}

func isIana(name string) bool {
	if name == "" || name == "Local" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}
