package steps

import (
	"strconv"
	"strings"

	"github.com/shaiso/Tollgate/internal/domain"
)

// Имена шагов, для которых есть сборщики.
const (
	CheckVehicle          = "check_vehicle"
	QueryBlacklist        = "query_blacklist"
	CreateOrder           = "create_order"
	UploadVehicleImages   = "upload_vehicle_images"
	SubmitIdentity        = "submit_identity"
	ConfirmSign           = "confirm_sign"
	VerifyTransportPermit = "verify_transport_permit"
	OpenWallet            = "open_wallet"
	BindVehicle           = "bind_vehicle"
	SubmitAxleInfo        = "submit_axle_info"
	SyncVehicleAttributes = "sync_vehicle_attributes"
	IssueCard             = "issue_card"
	IssueOBU              = "issue_obu"
	ActivateDevices       = "activate_devices"
	NotifyCompletion      = "notify_completion"
)

func buildCheckVehicle(in *Input) (map[string]any, error) {
	id := in.Params.Identity()
	return map[string]any{
		"plate_no":     id.PlateNo,
		"plate_color":  in.Params.Get(domain.ParamPlateColor),
		"vehicle_type": in.Params.Get(domain.ParamVehicleType),
		"variant":      string(in.Variant),
	}, nil
}

func buildQueryBlacklist(in *Input) (map[string]any, error) {
	id := in.Params.Identity()
	return map[string]any{
		"plate_no":  id.PlateNo,
		"id_number": id.IDNumber,
	}, nil
}

func buildCreateOrder(in *Input) (map[string]any, error) {
	id := in.Params.Identity()
	payload := map[string]any{
		"variant":    string(in.Variant),
		"owner_name": id.OwnerName,
		"phone":      id.Phone,
		"vehicle":    in.vehicle(),
	}
	if seats := in.Params.Get(domain.ParamSeats); seats != "" {
		payload["seats"] = seats
	}
	return payload, nil
}

func buildUploadVehicleImages(in *Input) (map[string]any, error) {
	vals, err := in.require(domain.FieldOrderID)
	if err != nil {
		return nil, err
	}
	raw, err := in.param(domain.ParamImageIDs)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"order_id":  vals[domain.FieldOrderID],
		"image_ids": splitList(raw),
	}, nil
}

func buildSubmitIdentity(in *Input) (map[string]any, error) {
	vals, err := in.require(domain.FieldOrderID)
	if err != nil {
		return nil, err
	}
	id := in.Params.Identity()
	return map[string]any{
		"order_id":   vals[domain.FieldOrderID],
		"owner_name": id.OwnerName,
		"id_number":  id.IDNumber,
		"phone":      id.Phone,
		"bank_card":  in.Params.Get(domain.ParamBankCard),
		"bank_name":  in.Params.Get(domain.ParamBankName),
	}, nil
}

func buildConfirmSign(in *Input) (map[string]any, error) {
	vals, err := in.require(domain.FieldOrderID, domain.FieldSignOrderID,
		domain.FieldVerifyCodeNo, domain.FieldVerifyCode)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"order_id":       vals[domain.FieldOrderID],
		"sign_order_id":  vals[domain.FieldSignOrderID],
		"verify_code_no": vals[domain.FieldVerifyCodeNo],
		"verify_code":    vals[domain.FieldVerifyCode],
	}, nil
}

func buildVerifyTransportPermit(in *Input) (map[string]any, error) {
	vals, err := in.require(domain.FieldOrderID)
	if err != nil {
		return nil, err
	}
	permit, err := in.param(domain.ParamTransportPermitNo)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"order_id":            vals[domain.FieldOrderID],
		"transport_permit_no": permit,
		"plate_no":            in.Params.Identity().PlateNo,
	}, nil
}

func buildOpenWallet(in *Input) (map[string]any, error) {
	vals, err := in.require(domain.FieldOrderID, domain.FieldSignOrderID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"order_id":      vals[domain.FieldOrderID],
		"sign_order_id": vals[domain.FieldSignOrderID],
		"bank_card":     in.Params.Get(domain.ParamBankCard),
	}, nil
}

func buildBindVehicle(in *Input) (map[string]any, error) {
	vals, err := in.require(domain.FieldOrderID, domain.FieldWalletID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"order_id":  vals[domain.FieldOrderID],
		"wallet_id": vals[domain.FieldWalletID],
		"vehicle":   in.vehicle(),
	}, nil
}

func buildSubmitAxleInfo(in *Input) (map[string]any, error) {
	vals, err := in.require(domain.FieldOrderID)
	if err != nil {
		return nil, err
	}
	axles, err := in.param(domain.ParamAxleCount)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(axles)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"order_id":   vals[domain.FieldOrderID],
		"axle_count": n,
	}
	if w := in.Params.Get(domain.ParamTotalWeight); w != "" {
		payload["total_weight"] = w
	}
	return payload, nil
}

func buildSyncVehicleAttributes(in *Input) (map[string]any, error) {
	vals, err := in.require(domain.FieldOrderID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"order_id": vals[domain.FieldOrderID],
		"vehicle":  in.vehicle(),
	}
	if id := in.Context.Get(domain.FieldVehicleID); id != "" {
		payload["vehicle_id"] = id
	}
	return payload, nil
}

func buildIssueCard(in *Input) (map[string]any, error) {
	vals, err := in.require(domain.FieldOrderID, domain.FieldWalletID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"order_id":  vals[domain.FieldOrderID],
		"wallet_id": vals[domain.FieldWalletID],
		"plate_no":  in.Params.Identity().PlateNo,
	}, nil
}

func buildIssueOBU(in *Input) (map[string]any, error) {
	vals, err := in.require(domain.FieldOrderID, domain.FieldCardNo)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"order_id": vals[domain.FieldOrderID],
		"card_no":  vals[domain.FieldCardNo],
		"plate_no": in.Params.Identity().PlateNo,
	}, nil
}

func buildActivateDevices(in *Input) (map[string]any, error) {
	vals, err := in.require(domain.FieldOrderID, domain.FieldCardNo, domain.FieldOBUNo)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"order_id": vals[domain.FieldOrderID],
		"card_no":  vals[domain.FieldCardNo],
		"obu_no":   vals[domain.FieldOBUNo],
	}, nil
}

func buildNotifyCompletion(in *Input) (map[string]any, error) {
	vals, err := in.require(domain.FieldOrderID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"order_id":   vals[domain.FieldOrderID],
		"phone":      in.Params.Identity().Phone,
		"device_ids": in.Context.DeviceIDs(),
	}, nil
}

// splitList разбивает строку "a, b,c" на элементы без пустых.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
