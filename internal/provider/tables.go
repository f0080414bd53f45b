package provider

const (
	unknownCountry = "Unknown"

	// defaultRisk is the mid-range score used when nothing is known.
	defaultRisk = 5.0
)

type countryInfo struct {
	Name      string
	Continent string
	Timezone  string
	Risk      float64
}

var continentNames = map[string]string{
	"AF": "Africa",
	"AN": "Antarctica",
	"AS": "Asia",
	"EU": "Europe",
	"NA": "North America",
	"OC": "Oceania",
	"SA": "South America",
}

// countries maps ISO 3166-1 alpha-2 codes to display data and a coarse
// geographic risk score (0..10).
var countries = map[string]countryInfo{
	"AE": {"United Arab Emirates", "AS", "Asia/Dubai", 4},
	"AR": {"Argentina", "SA", "America/Argentina/Buenos_Aires", 4},
	"AT": {"Austria", "EU", "Europe/Vienna", 2},
	"AU": {"Australia", "OC", "Australia/Sydney", 2},
	"BD": {"Bangladesh", "AS", "Asia/Dhaka", 5},
	"BE": {"Belgium", "EU", "Europe/Brussels", 2},
	"BG": {"Bulgaria", "EU", "Europe/Sofia", 5},
	"BR": {"Brazil", "SA", "America/Sao_Paulo", 6},
	"BY": {"Belarus", "EU", "Europe/Minsk", 7},
	"CA": {"Canada", "NA", "America/Toronto", 2},
	"CH": {"Switzerland", "EU", "Europe/Zurich", 2},
	"CL": {"Chile", "SA", "America/Santiago", 4},
	"CN": {"China", "AS", "Asia/Shanghai", 8},
	"CO": {"Colombia", "SA", "America/Bogota", 5},
	"CZ": {"Czechia", "EU", "Europe/Prague", 3},
	"DE": {"Germany", "EU", "Europe/Berlin", 2},
	"DK": {"Denmark", "EU", "Europe/Copenhagen", 2},
	"EG": {"Egypt", "AF", "Africa/Cairo", 6},
	"ES": {"Spain", "EU", "Europe/Madrid", 3},
	"FI": {"Finland", "EU", "Europe/Helsinki", 2},
	"FR": {"France", "EU", "Europe/Paris", 2},
	"GB": {"United Kingdom", "EU", "Europe/London", 2},
	"GR": {"Greece", "EU", "Europe/Athens", 3},
	"HK": {"Hong Kong", "AS", "Asia/Hong_Kong", 5},
	"HU": {"Hungary", "EU", "Europe/Budapest", 3},
	"ID": {"Indonesia", "AS", "Asia/Jakarta", 6},
	"IE": {"Ireland", "EU", "Europe/Dublin", 2},
	"IL": {"Israel", "AS", "Asia/Jerusalem", 4},
	"IN": {"India", "AS", "Asia/Kolkata", 6},
	"IR": {"Iran", "AS", "Asia/Tehran", 9},
	"IT": {"Italy", "EU", "Europe/Rome", 3},
	"JP": {"Japan", "AS", "Asia/Tokyo", 2},
	"KE": {"Kenya", "AF", "Africa/Nairobi", 5},
	"KP": {"North Korea", "AS", "Asia/Pyongyang", 10},
	"KR": {"South Korea", "AS", "Asia/Seoul", 3},
	"KZ": {"Kazakhstan", "AS", "Asia/Almaty", 6},
	"MX": {"Mexico", "NA", "America/Mexico_City", 5},
	"MY": {"Malaysia", "AS", "Asia/Kuala_Lumpur", 5},
	"NG": {"Nigeria", "AF", "Africa/Lagos", 8},
	"NL": {"Netherlands", "EU", "Europe/Amsterdam", 3},
	"NO": {"Norway", "EU", "Europe/Oslo", 2},
	"NZ": {"New Zealand", "OC", "Pacific/Auckland", 2},
	"PH": {"Philippines", "AS", "Asia/Manila", 6},
	"PK": {"Pakistan", "AS", "Asia/Karachi", 7},
	"PL": {"Poland", "EU", "Europe/Warsaw", 3},
	"PT": {"Portugal", "EU", "Europe/Lisbon", 2},
	"RO": {"Romania", "EU", "Europe/Bucharest", 5},
	"RU": {"Russia", "EU", "Europe/Moscow", 8},
	"SA": {"Saudi Arabia", "AS", "Asia/Riyadh", 5},
	"SE": {"Sweden", "EU", "Europe/Stockholm", 2},
	"SG": {"Singapore", "AS", "Asia/Singapore", 3},
	"SY": {"Syria", "AS", "Asia/Damascus", 9},
	"TH": {"Thailand", "AS", "Asia/Bangkok", 5},
	"TR": {"Turkey", "AS", "Europe/Istanbul", 5},
	"TW": {"Taiwan", "AS", "Asia/Taipei", 3},
	"UA": {"Ukraine", "EU", "Europe/Kyiv", 6},
	"US": {"United States", "NA", "America/New_York", 2},
	"VE": {"Venezuela", "SA", "America/Caracas", 7},
	"VN": {"Vietnam", "AS", "Asia/Ho_Chi_Minh", 6},
	"ZA": {"South Africa", "AF", "Africa/Johannesburg", 5},
}

// RiskScore returns the static geographic risk for a country code, or the
// mid-range default for codes not in the table.
func RiskScore(code string) float64 {
	if info, ok := countries[code]; ok {
		return info.Risk
	}
	return defaultRisk
}

// CountryName returns the display name for a code, or "Unknown".
func CountryName(code string) string {
	if info, ok := countries[code]; ok {
		return info.Name
	}
	return unknownCountry
}
