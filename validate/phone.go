package validate

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Country describes one supported dialing region.
type Country struct {
	Code      string
	Name      string
	Dial      string
	MinLength int
	MaxLength int
	Format    string
}

// Countries is the supported dialing table, in display order.
var Countries = []Country{
	{Code: "MX", Name: "México", Dial: "+52", MinLength: 10, MaxLength: 10, Format: "XXX XXX XXXX"},
	{Code: "US", Name: "Estados Unidos", Dial: "+1", MinLength: 10, MaxLength: 10, Format: "(XXX) XXX-XXXX"},
	{Code: "CA", Name: "Canadá", Dial: "+1", MinLength: 10, MaxLength: 10, Format: "(XXX) XXX-XXXX"},
	{Code: "ES", Name: "España", Dial: "+34", MinLength: 9, MaxLength: 9, Format: "XXX XXX XXX"},
	{Code: "CO", Name: "Colombia", Dial: "+57", MinLength: 10, MaxLength: 10, Format: "XXX XXX XXXX"},
	{Code: "AR", Name: "Argentina", Dial: "+54", MinLength: 10, MaxLength: 10, Format: "XX XXXX-XXXX"},
	{Code: "PE", Name: "Perú", Dial: "+51", MinLength: 9, MaxLength: 9, Format: "XXX XXX XXX"},
	{Code: "CL", Name: "Chile", Dial: "+56", MinLength: 9, MaxLength: 9, Format: "X XXXX XXXX"},
	{Code: "BR", Name: "Brasil", Dial: "+55", MinLength: 10, MaxLength: 11, Format: "(XX) XXXXX-XXXX"},
	{Code: "GB", Name: "Reino Unido", Dial: "+44", MinLength: 10, MaxLength: 10, Format: "XXXX XXX XXXX"},
}

// PhoneResult is the outcome of an international phone validation.
type PhoneResult struct {
	Valid   bool
	Err     string
	Country *Country
}

// CleanPhone strips everything but digits.
func CleanPhone(phone string) string {
	var b strings.Builder
	for _, r := range norm.NFC.String(phone) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DetectCountry finds the country whose dial code prefixes the number.
// Longer dial codes win over shorter ones.
func DetectCountry(phone string) *Country {
	if !strings.HasPrefix(phone, "+") {
		return nil
	}
	sorted := append([]Country(nil), Countries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Dial) > len(sorted[j].Dial)
	})
	for i := range sorted {
		if strings.HasPrefix(phone, sorted[i].Dial) {
			c := sorted[i]
			return &c
		}
	}
	return nil
}

// Phone validates an international phone number. An empty number is valid:
// the field is optional.
func Phone(phone string) PhoneResult {
	if phone == "" {
		return PhoneResult{Valid: true}
	}
	if !strings.HasPrefix(phone, "+") {
		return PhoneResult{Err: "number must include a country code (+52, +1, ...)"}
	}

	country := DetectCountry(phone)
	if country == nil {
		return PhoneResult{Err: "unrecognized country code"}
	}

	local := CleanPhone(phone[len(country.Dial):])
	if len(local) < country.MinLength {
		return PhoneResult{
			Err:     fmt.Sprintf("%s numbers need at least %d digits", country.Name, country.MinLength),
			Country: country,
		}
	}
	if len(local) > country.MaxLength {
		return PhoneResult{
			Err:     fmt.Sprintf("%s numbers allow at most %d digits", country.Name, country.MaxLength),
			Country: country,
		}
	}

	switch country.Code {
	case "MX":
		if !validMexicanNumber(local) {
			return PhoneResult{Err: "invalid Mexican number", Country: country}
		}
	case "US", "CA":
		if !validNANPNumber(local) {
			return PhoneResult{Err: "invalid US/Canada number", Country: country}
		}
	}

	return PhoneResult{Valid: true, Country: country}
}

// validMexicanNumber: ten digits, not starting with 0 or 1.
func validMexicanNumber(local string) bool {
	if len(local) != 10 {
		return false
	}
	return local[0] != '0' && local[0] != '1'
}

// validNANPNumber: area code and exchange may not start with 0 or 1.
func validNANPNumber(local string) bool {
	if len(local) != 10 {
		return false
	}
	if local[0] == '0' || local[0] == '1' {
		return false
	}
	if local[3] == '0' || local[3] == '1' {
		return false
	}
	return true
}

// FormatPhone renders digits into a country display format, where X marks
// a digit slot. Extra digits beyond the format are dropped.
func FormatPhone(phone, format string) string {
	if format == "" {
		return phone
	}
	digits := CleanPhone(phone)
	var b strings.Builder
	di := 0
	for i := 0; i < len(format) && di < len(digits); i++ {
		if format[i] == 'X' {
			b.WriteByte(digits[di])
			di++
		} else {
			b.WriteByte(format[i])
		}
	}
	return b.String()
}

// ToInternational prefixes a local number with the dial code of the given
// country. Unknown countries return the input unchanged.
func ToInternational(local, countryCode string) string {
	c := CountryByCode(countryCode)
	if c == nil {
		return local
	}
	return c.Dial + CleanPhone(local)
}

// ExtractLocal strips the detected dial code from an international number.
func ExtractLocal(international string) string {
	c := DetectCountry(international)
	if c == nil {
		return international
	}
	return international[len(c.Dial):]
}

// CountryByCode looks a country up by ISO code.
func CountryByCode(code string) *Country {
	for i := range Countries {
		if Countries[i].Code == code {
			c := Countries[i]
			return &c
		}
	}
	return nil
}

// CountryByDial looks a country up by dial code.
func CountryByDial(dial string) *Country {
	for i := range Countries {
		if Countries[i].Dial == dial {
			c := Countries[i]
			return &c
		}
	}
	return nil
}
