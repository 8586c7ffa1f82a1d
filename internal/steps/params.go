package steps

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shaiso/Tollgate/internal/domain"
)

// requiredParams перечисляет обязательные параметры каждого варианта.
var requiredParams = map[domain.Variant][]string{
	domain.VariantPassenger: {
		domain.ParamOwnerName,
		domain.ParamIDNumber,
		domain.ParamPhone,
		domain.ParamBankCard,
		domain.ParamPlateNo,
		domain.ParamPlateColor,
		domain.ParamVehicleType,
	},
	domain.VariantFreight: {
		domain.ParamOwnerName,
		domain.ParamIDNumber,
		domain.ParamPhone,
		domain.ParamBankCard,
		domain.ParamPlateNo,
		domain.ParamPlateColor,
		domain.ParamVehicleType,
		domain.ParamTransportPermitNo,
		domain.ParamAxleCount,
	},
}

// Веса и контрольные символы 18-значного номера удостоверения личности.
var (
	idWeights    = [17]int{7, 9, 10, 5, 8, 4, 2, 1, 6, 3, 7, 9, 10, 5, 8, 4, 2}
	idCheckCodes = "10X98765432"
)

// ValidateParameters проверяет параметры до любых удалённых вызовов.
//
// Возвращает *domain.FatalError класса validation со всеми найденными
// проблемами, перечисленными через "; ".
func ValidateParameters(variant domain.Variant, p domain.Parameters) error {
	required, ok := requiredParams[variant]
	if !ok {
		return domain.NewValidationError(fmt.Sprintf("unknown variant %q", variant))
	}

	var problems []string
	for _, key := range required {
		if !p.Has(key) {
			problems = append(problems, key+" is required")
		}
	}

	if v := p.Get(domain.ParamPhone); v != "" && !isPhone(v) {
		problems = append(problems, "phone must be 11 digits")
	}
	if v := p.Get(domain.ParamIDNumber); v != "" && !isNationalID(v) {
		problems = append(problems, "id_number is not a valid 18-character national id")
	}
	if v := p.Get(domain.ParamBankCard); v != "" && !isBankCard(v) {
		problems = append(problems, "bank_card must be 16 to 19 digits")
	}
	if v := p.Get(domain.ParamAxleCount); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n < 2 {
			problems = append(problems, "axle_count must be an integer >= 2")
		}
	}

	if len(problems) > 0 {
		return domain.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isPhone(s string) bool {
	return len(s) == 11 && s[0] == '1' && isDigits(s)
}

func isBankCard(s string) bool {
	return len(s) >= 16 && len(s) <= 19 && isDigits(s)
}

// isNationalID проверяет длину, цифры и контрольный символ.
func isNationalID(s string) bool {
	s = strings.ToUpper(s)
	if len(s) != 18 || !isDigits(s[:17]) {
		return false
	}

	sum := 0
	for i := 0; i < 17; i++ {
		sum += int(s[i]-'0') * idWeights[i]
	}
	return s[17] == idCheckCodes[sum%11]
}
