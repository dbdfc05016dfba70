// Package resinspinning manages resin and spinning process parameter records.
package resinspinning

import (
	"fmt"
	"time"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
)

// ModuleName is the registry key guarding every record operation.
const ModuleName = "resin-spinning"

// DefaultResinType is applied when a record omits resin_type.
const DefaultResinType = "UHMWPE"

// Errors returned by the record service.
var (
	ErrNotFound       = fmt.Errorf("resin spinning record: %w", httpx.ErrNotFound)
	ErrDuplicateBatch = fmt.Errorf("batch number already exists: %w", httpx.ErrDuplicate)
)

// Record holds the resin properties and spinning parameters of one batch.
type Record struct {
	ID                         int64     `json:"id"`
	BatchNumber                string    `json:"batch_number"`
	MaterialGrade              string    `json:"material_grade"`
	Supplier                   string    `json:"supplier,omitempty"`
	ResinType                  string    `json:"resin_type"`
	MolecularWeight            *float64  `json:"resin_molecular_weight_g_mol"`
	PolydispersityIndex        *float64  `json:"polydispersity_index_pdi"`
	IntrinsicViscosity         *float64  `json:"intrinsic_viscosity_dl_g"`
	MeltingPoint               *float64  `json:"melting_point_c"`
	Crystallinity              *float64  `json:"crystallinity_percent"`
	SpinningMethod             string    `json:"spinning_method,omitempty"`
	SolventSystem              string    `json:"solvent_system,omitempty"`
	SolutionConcentration      *float64  `json:"solution_concentration_percent"`
	SpinningTemperature        *float64  `json:"spinning_temperature_c"`
	SpinneretSpecifications    string    `json:"spinneret_specifications,omitempty"`
	CoagulationBathComposition string    `json:"coagulation_bath_composition,omitempty"`
	CoagulationBathTemperature *float64  `json:"coagulation_bath_temperature_c"`
	DrawRatio                  *float64  `json:"draw_ratio"`
	HeatTreatmentTemperature   *float64  `json:"heat_treatment_temperature_c"`
	Remarks                    string    `json:"remarks,omitempty"`
	CreatedBy                  *int64    `json:"created_by_user_id"`
	CreatedByName              string    `json:"creator_username,omitempty"`
	LastModifiedBy             *int64    `json:"last_modified_by_user_id"`
	LastModifiedByName         string    `json:"last_modifier_username,omitempty"`
	CreatedAt                  time.Time `json:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

// RecordInput is the writable part of a Record.
type RecordInput struct {
	BatchNumber                string   `json:"batch_number" validate:"required,max=100"`
	MaterialGrade              string   `json:"material_grade" validate:"required,max=100"`
	Supplier                   string   `json:"supplier" validate:"max=150"`
	ResinType                  string   `json:"resin_type" validate:"max=100"`
	MolecularWeight            *float64 `json:"resin_molecular_weight_g_mol" validate:"omitempty,gte=0"`
	PolydispersityIndex        *float64 `json:"polydispersity_index_pdi" validate:"omitempty,gte=0"`
	IntrinsicViscosity         *float64 `json:"intrinsic_viscosity_dl_g" validate:"omitempty,gte=0"`
	MeltingPoint               *float64 `json:"melting_point_c"`
	Crystallinity              *float64 `json:"crystallinity_percent" validate:"omitempty,gte=0,lte=100"`
	SpinningMethod             string   `json:"spinning_method" validate:"max=100"`
	SolventSystem              string   `json:"solvent_system" validate:"max=150"`
	SolutionConcentration      *float64 `json:"solution_concentration_percent" validate:"omitempty,gte=0,lte=100"`
	SpinningTemperature        *float64 `json:"spinning_temperature_c"`
	SpinneretSpecifications    string   `json:"spinneret_specifications" validate:"max=100"`
	CoagulationBathComposition string   `json:"coagulation_bath_composition" validate:"max=150"`
	CoagulationBathTemperature *float64 `json:"coagulation_bath_temperature_c"`
	DrawRatio                  *float64 `json:"draw_ratio" validate:"omitempty,gte=0"`
	HeatTreatmentTemperature   *float64 `json:"heat_treatment_temperature_c"`
	Remarks                    string   `json:"remarks"`
}

// ListFilters narrows listings and exports. Text filters are case-insensitive substrings.
type ListFilters struct {
	BatchNumber   string
	MaterialGrade string
	ResinType     string
	Page          int
	PerPage       int
}

// RowError describes one rejected import row. Row counts the header as line 1.
type RowError struct {
	Row         int    `json:"row_number"`
	BatchNumber string `json:"batch_number,omitempty"`
	Error       string `json:"error"`
}

// ImportResult summarises a CSV import.
type ImportResult struct {
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	Errors       []RowError `json:"errors"`
}

func (r Record) input() RecordInput {
	return RecordInput{
		BatchNumber:                r.BatchNumber,
		MaterialGrade:              r.MaterialGrade,
		Supplier:                   r.Supplier,
		ResinType:                  r.ResinType,
		MolecularWeight:            r.MolecularWeight,
		PolydispersityIndex:        r.PolydispersityIndex,
		IntrinsicViscosity:         r.IntrinsicViscosity,
		MeltingPoint:               r.MeltingPoint,
		Crystallinity:              r.Crystallinity,
		SpinningMethod:             r.SpinningMethod,
		SolventSystem:              r.SolventSystem,
		SolutionConcentration:      r.SolutionConcentration,
		SpinningTemperature:        r.SpinningTemperature,
		SpinneretSpecifications:    r.SpinneretSpecifications,
		CoagulationBathComposition: r.CoagulationBathComposition,
		CoagulationBathTemperature: r.CoagulationBathTemperature,
		DrawRatio:                  r.DrawRatio,
		HeatTreatmentTemperature:   r.HeatTreatmentTemperature,
		Remarks:                    r.Remarks,
	}
}
