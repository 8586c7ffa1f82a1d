package domain

import "strings"

// Ключи параметров заявки.
const (
	ParamOwnerName         = "owner_name"
	ParamIDNumber          = "id_number"
	ParamPhone             = "phone"
	ParamBankCard          = "bank_card"
	ParamBankName          = "bank_name"
	ParamPlateNo           = "plate_no"
	ParamPlateColor        = "plate_color"
	ParamVehicleType       = "vehicle_type"
	ParamVIN               = "vin"
	ParamEngineNo          = "engine_no"
	ParamSeats             = "seats"
	ParamTransportPermitNo = "transport_permit_no"
	ParamAxleCount         = "axle_count"
	ParamTotalWeight       = "total_weight"
	ParamImageIDs          = "image_ids"

	// ParamWalletID дописывается шагом открытия кошелька.
	ParamWalletID = "wallet_id"
)

// Parameters содержит параметры заявителя: личность, банковская карта,
// номер и атрибуты транспортного средства.
//
// Параметры передаёт вызывающая сторона. Отдельные поля (например, wallet_id)
// дописываются шагами саги через Append и уже не перезаписываются.
type Parameters map[string]string

// Get возвращает значение параметра без пробелов по краям.
func (p Parameters) Get(key string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p[key])
}

// Has проверяет, что параметр задан и не пустой.
func (p Parameters) Has(key string) bool {
	return p.Get(key) != ""
}

// Append добавляет параметр, только если он ещё не задан.
// Возвращает true, если значение записано.
func (p Parameters) Append(key, value string) bool {
	if p == nil || value == "" || p.Has(key) {
		return false
	}
	p[key] = value
	return true
}

// Clone возвращает копию параметров.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Identity возвращает идентифицирующие поля заявителя для проверки дублей.
func (p Parameters) Identity() Identity {
	return Identity{
		Phone:     p.Get(ParamPhone),
		IDNumber:  strings.ToUpper(p.Get(ParamIDNumber)),
		PlateNo:   strings.ToUpper(p.Get(ParamPlateNo)),
		OwnerName: p.Get(ParamOwnerName),
	}
}

// Identity содержит поля, по которым ищутся существующие записи.
type Identity struct {
	Phone     string `json:"phone"`
	IDNumber  string `json:"id_number"`
	PlateNo   string `json:"plate_no"`
	OwnerName string `json:"owner_name"`
}

// HasPersonKey сообщает, можно ли искать по связке телефон + паспорт (tier 1).
func (i Identity) HasPersonKey() bool {
	return i.Phone != "" && i.IDNumber != ""
}

// HasVehicleKey сообщает, можно ли искать по связке номер + имя владельца (tier 2).
func (i Identity) HasVehicleKey() bool {
	return i.PlateNo != "" && i.OwnerName != ""
}
