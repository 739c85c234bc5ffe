package handler

import (
	"strings"
	"time"

	"clubgate/internal/access"
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

type ValidateQRRequest struct {
	QRCode       string   `json:"qr_code"`
	Location     string   `json:"ubicacion,omitempty"`
	DeviceID     string   `json:"dispositivo_id,omitempty"`
	Latitude     *float64 `json:"latitud,omitempty"`
	Longitude    *float64 `json:"longitud,omitempty"`
	Observations string   `json:"observaciones,omitempty"`
}

func (r *ValidateQRRequest) Validate() error {
	if strings.TrimSpace(r.QRCode) == "" {
		return dErrors.New(dErrors.CodeValidation, "qr_code is required")
	}
	if r.Latitude != nil && (*r.Latitude < -90 || *r.Latitude > 90) {
		return dErrors.New(dErrors.CodeValidation, "latitud must be between -90 and 90")
	}
	if r.Longitude != nil && (*r.Longitude < -180 || *r.Longitude > 180) {
		return dErrors.New(dErrors.CodeValidation, "longitud must be between -180 and 180")
	}
	return nil
}

func (r *ValidateQRRequest) toScan() access.QRScan {
	return access.QRScan{
		Payload: r.QRCode,
		ScanContext: access.ScanContext{
			Location:     r.Location,
			DeviceID:     r.DeviceID,
			Latitude:     r.Latitude,
			Longitude:    r.Longitude,
			Observations: r.Observations,
		},
	}
}

type ManualAccessRequest struct {
	MemberID     id.MemberID `json:"miembro_id"`
	Location     string      `json:"ubicacion,omitempty"`
	Observations string      `json:"observaciones,omitempty"`
	Force        bool        `json:"forzar_acceso,omitempty"`
}

func (r *ManualAccessRequest) Validate() error {
	if r.MemberID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "miembro_id is required")
	}
	return nil
}

// MemberSummary is the member block of the decision envelope.
type MemberSummary struct {
	ID             int64   `json:"id"`
	Number         string  `json:"numero_miembro"`
	FullName       string  `json:"nombre_completo"`
	PhotoURL       string  `json:"foto_url,omitempty"`
	Category       string  `json:"categoria"`
	State          string  `json:"estado"`
	Balance        float64 `json:"saldo_cuenta"`
	LastPaidPeriod *string `json:"ultima_cuota_pagada,omitempty"`
}

// DecisionResponse is the envelope returned for QR and manual decisions.
type DecisionResponse struct {
	Allowed     bool          `json:"acceso_permitido"`
	Outcome     string        `json:"resultado"`
	Level       string        `json:"nivel_alerta"`
	Message     string        `json:"mensaje"`
	Member      MemberSummary `json:"miembro"`
	AccessID    int64         `json:"acceso_id"`
	Timestamp   time.Time     `json:"timestamp"`
	Debt        *float64      `json:"deuda"`
	DaysOverdue int           `json:"dias_mora"`
}

func toDecisionResponse(res *access.Result) *DecisionResponse {
	m := res.Member
	summary := MemberSummary{
		ID:       int64(m.ID),
		Number:   m.Number,
		FullName: m.FullName,
		PhotoURL: m.PhotoURL,
		Category: m.Category,
		State:    string(m.State),
		Balance:  m.Balance,
	}
	if m.LastPaidPeriod != nil {
		s := m.LastPaidPeriod.UTC().Format(dateLayout)
		summary.LastPaidPeriod = &s
	}
	return &DecisionResponse{
		Allowed:     res.Allowed(),
		Outcome:     string(res.Record.Outcome),
		Level:       string(res.Record.Level),
		Message:     res.Record.Message,
		Member:      summary,
		AccessID:    int64(res.Record.ID),
		Timestamp:   res.Record.OccurredAt,
		Debt:        res.Debt,
		DaysOverdue: res.DaysOverdue,
	}
}

type RecordResponse struct {
	ID              int64     `json:"id"`
	MemberID        int64     `json:"miembro_id"`
	OccurredAt      time.Time `json:"fecha_hora"`
	Channel         string    `json:"tipo_acceso"`
	Outcome         string    `json:"resultado"`
	Level           string    `json:"nivel_alerta"`
	Location        string    `json:"ubicacion"`
	DeviceID        string    `json:"dispositivo_id,omitempty"`
	PayloadVerified bool      `json:"qr_verificado"`
	Message         string    `json:"mensaje"`
	OperatorID      *int64    `json:"operador_id"`
	MemberState     string    `json:"estado_miembro"`
	MemberBalance   float64   `json:"saldo_miembro"`
	Latitude        *float64  `json:"latitud,omitempty"`
	Longitude       *float64  `json:"longitud,omitempty"`
	Observations    string    `json:"observaciones,omitempty"`
}

func toRecordResponse(r access.Record) RecordResponse {
	return RecordResponse{
		ID:              int64(r.ID),
		MemberID:        int64(r.MemberID),
		OccurredAt:      r.OccurredAt,
		Channel:         string(r.Channel),
		Outcome:         string(r.Outcome),
		Level:           string(r.Level),
		Location:        r.Location,
		DeviceID:        r.DeviceID,
		PayloadVerified: r.PayloadVerified,
		Message:         r.Message,
		OperatorID:      r.OperatorID.Int64Ptr(),
		MemberState:     string(r.MemberState),
		MemberBalance:   r.MemberBalance,
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
		Observations:    r.Observations,
	}
}

func toRecordResponses(records []access.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toRecordResponse(r))
	}
	return out
}

type HistoryResponse struct {
	Items    []RecordResponse `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Pages    int              `json:"pages"`
}

func toHistoryResponse(p *access.Page) *HistoryResponse {
	pages := 0
	if p.PageSize > 0 {
		pages = (p.Total + p.PageSize - 1) / p.PageSize
	}
	return &HistoryResponse{
		Items:    toRecordResponses(p.Records),
		Total:    p.Total,
		Page:     p.Page,
		PageSize: p.PageSize,
		Pages:    pages,
	}
}

type SummaryResponse struct {
	Today  int              `json:"hoy"`
	Week   int              `json:"semana"`
	Month  int              `json:"mes"`
	Recent []RecordResponse `json:"ultimos_accesos"`
}

type HourCountResponse struct {
	Hour  int `json:"hora"`
	Count int `json:"cantidad"`
}

type StatisticsResponse struct {
	Day       string              `json:"fecha"`
	Hourly    []HourCountResponse `json:"por_hora"`
	PeakHour  *int                `json:"hora_pico"`
	PeakCount int                 `json:"accesos_hora_pico"`
	Total     int                 `json:"total"`
	Permitted int                 `json:"permitidos"`
	Warned    int                 `json:"advertencias"`
	Rejected  int                 `json:"rechazados"`
}

func toStatisticsResponse(s *access.Statistics) *StatisticsResponse {
	resp := &StatisticsResponse{
		Day:       s.Day.Format(dateLayout),
		Hourly:    make([]HourCountResponse, 0, len(s.Hourly)),
		PeakCount: s.PeakCount,
		Total:     s.Total(),
		Permitted: s.Permitted,
		Warned:    s.Warned,
		Rejected:  s.Rejected,
	}
	for _, h := range s.Hourly {
		resp.Hourly = append(resp.Hourly, HourCountResponse{Hour: h.Hour, Count: h.Count})
	}
	if s.PeakCount > 0 {
		hour := s.PeakHour
		resp.PeakHour = &hour
	}
	return resp
}
