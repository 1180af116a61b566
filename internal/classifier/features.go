package classifier

import "strings"

// TransformVersion tags the feature transform below. The offline
// training pipeline mirrors this transform exactly; an artifact built
// against a different transform version is rejected at load time.
const TransformVersion = "v1"

// FeatureVector is the numeric representation of a request:
// [path length, digit count, special char count, body length, method code].
type FeatureVector [5]float64

var specialChars = map[rune]bool{
	'\'': true, '"': true, '-': true, '<': true,
	'>': true, ';': true, '%': true, '(': true, ')': true,
}

var methodCodes = map[string]float64{
	"GET":    0,
	"POST":   1,
	"PUT":    2,
	"DELETE": 3,
}

// Features converts a request into the vector format the model expects.
func Features(method, path, body string) FeatureVector {
	var digits, specials float64
	for _, r := range path {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case specialChars[r]:
			specials++
		}
	}

	// Unknown methods map to 0, same as GET.
	code := methodCodes[strings.ToUpper(method)]

	return FeatureVector{
		float64(len(path)),
		digits,
		specials,
		float64(len(body)),
		code,
	}
}
