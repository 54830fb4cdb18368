package models

import (
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"improc/internal/processing/chain"
)

// Filter names
const (
	FilterBlur       = "blur"
	FilterConvolve   = "convolve"
	FilterCorrelate  = "correlate"
	FilterHistoMatch = "histomatch"
	FilterQuantize   = "quantize"
)

// ProcessingState describes the operation currently running, if any
type ProcessingState struct {
	IsActive     bool
	Operation    string
	CurrentStage string
	StartTime    time.Time

	// Stages lists the stages the current operation has passed, in order.
	Stages []string
}

// FilterParameters holds the current values of one filter's parameters
type FilterParameters struct {
	Name       string
	Parameters map[string]interface{}
	Defaults   map[string]interface{}
	Ranges     map[string]ParameterRange
}

// ParameterRange defines the valid values of a parameter
type ParameterRange struct {
	Min     interface{}
	Max     interface{}
	Step    interface{}
	Options []interface{}
}

// ProcessingConfiguration manages filter parameters and performance settings
type ProcessingConfiguration struct {
	mu                  sync.RWMutex
	filterParameters    map[string]FilterParameters
	performanceSettings PerformanceSettings
}

// PerformanceSettings bounds concurrent work
type PerformanceSettings struct {
	MaxWorkers            int
	EnableParallelization bool
	MaxHistory            int
}

// DefaultPerformanceSettings uses one worker per CPU.
func DefaultPerformanceSettings() PerformanceSettings {
	return PerformanceSettings{
		MaxWorkers:            runtime.GOMAXPROCS(0),
		EnableParallelization: true,
		MaxHistory:            10,
	}
}

func NewProcessingConfiguration() *ProcessingConfiguration {
	config := &ProcessingConfiguration{
		filterParameters:    make(map[string]FilterParameters),
		performanceSettings: DefaultPerformanceSettings(),
	}
	config.initializeDefaultFilters()
	return config
}

func (pc *ProcessingConfiguration) initializeDefaultFilters() {
	register := func(name string, defaults map[string]interface{}, ranges map[string]ParameterRange) {
		pc.filterParameters[name] = FilterParameters{
			Name:       name,
			Parameters: lo.Assign(defaults),
			Defaults:   defaults,
			Ranges:     ranges,
		}
	}

	register(FilterBlur,
		map[string]interface{}{
			chain.ParamBlurWidth:  3,
			chain.ParamBlurHeight: 3,
		},
		map[string]ParameterRange{
			chain.ParamBlurWidth:  {Min: 1, Max: 255, Step: 2},
			chain.ParamBlurHeight: {Min: 1, Max: 255, Step: 2},
		})

	register(FilterConvolve, map[string]interface{}{}, map[string]ParameterRange{})

	register(FilterCorrelate,
		map[string]interface{}{
			chain.ParamMethod:   "cross",
			chain.ParamMultires: true,
		},
		map[string]ParameterRange{
			chain.ParamMethod:   {Options: []interface{}{"cross", "ssd", "coeff"}},
			chain.ParamMultires: {Options: []interface{}{true, false}},
		})

	register(FilterHistoMatch,
		map[string]interface{}{
			chain.ParamFlatTarget: true,
		},
		map[string]ParameterRange{
			chain.ParamFlatTarget: {Options: []interface{}{true, false}},
		})

	register(FilterQuantize,
		map[string]interface{}{
			chain.ParamLevels: 8,
			chain.ParamDither: false,
		},
		map[string]ParameterRange{
			chain.ParamLevels: {Min: 1, Max: 256, Step: 1},
			chain.ParamDither: {Options: []interface{}{true, false}},
			chain.ParamSeed:   {Min: 0, Max: int(^uint32(0) >> 1)},
		})
}

// GetFilterParameters returns a copy of the named filter's parameters.
func (pc *ProcessingConfiguration) GetFilterParameters(filter string) (FilterParameters, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	params, exists := pc.filterParameters[filter]
	if !exists {
		return FilterParameters{}, NewValidationError("filter", filter, "filter not found")
	}
	return copyFilterParameters(params), nil
}

// Resolve merges overrides over the filter's current parameters and
// validates the result. The returned map is owned by the caller.
func (pc *ProcessingConfiguration) Resolve(filter string, overrides map[string]interface{}) (map[string]interface{}, error) {
	pc.mu.RLock()
	params, exists := pc.filterParameters[filter]
	pc.mu.RUnlock()
	if !exists {
		return nil, NewValidationError("filter", filter, "filter not found")
	}

	merged := lo.Assign(params.Parameters, overrides)
	for name, value := range merged {
		if err := validateParameter(params, name, value); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// GetAvailableFilters lists the filter names in sorted order.
func (pc *ProcessingConfiguration) GetAvailableFilters() []string {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	names := lo.Keys(pc.filterParameters)
	slices.Sort(names)
	return names
}

func (pc *ProcessingConfiguration) GetPerformanceSettings() PerformanceSettings {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.performanceSettings
}

// UpdatePerformanceSettings replaces the settings, keeping at least one
// worker.
func (pc *ProcessingConfiguration) UpdatePerformanceSettings(settings PerformanceSettings) error {
	if settings.MaxWorkers < 1 {
		return NewValidationError("max_workers", settings.MaxWorkers, "at least one worker is required")
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.performanceSettings = settings
	return nil
}

func validateParameter(params FilterParameters, paramName string, value interface{}) error {
	paramRange, hasRange := params.Ranges[paramName]
	if !hasRange {
		return nil
	}

	if len(paramRange.Options) > 0 {
		if lo.Contains(paramRange.Options, value) {
			return nil
		}
		return NewValidationError(paramName, value, "value not in allowed options")
	}

	switch v := value.(type) {
	case int:
		if min, ok := paramRange.Min.(int); ok && v < min {
			return NewValidationError(paramName, value, "value below minimum")
		}
		if max, ok := paramRange.Max.(int); ok && v > max {
			return NewValidationError(paramName, value, "value above maximum")
		}
		if step, ok := paramRange.Step.(int); ok && step > 1 {
			base, _ := paramRange.Min.(int)
			if (v-base)%step != 0 {
				return NewValidationError(paramName, value, fmt.Sprintf("value must be %d plus a multiple of %d", base, step))
			}
		}
	case float64:
		if min, ok := paramRange.Min.(float64); ok && v < min {
			return NewValidationError(paramName, value, "value below minimum")
		}
		if max, ok := paramRange.Max.(float64); ok && v > max {
			return NewValidationError(paramName, value, "value above maximum")
		}
	default:
		if paramRange.Min != nil || paramRange.Max != nil {
			return NewValidationError(paramName, value, fmt.Sprintf("expected a number, got %T", value))
		}
	}
	return nil
}

func copyFilterParameters(src FilterParameters) FilterParameters {
	return FilterParameters{
		Name:       src.Name,
		Parameters: lo.Assign(src.Parameters),
		Defaults:   lo.Assign(src.Defaults),
		Ranges:     lo.Assign(src.Ranges),
	}
}

// ValidationError represents a parameter validation error
type ValidationError struct {
	Parameter string
	Value     interface{}
	Message   string
}

func NewValidationError(parameter string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Parameter: parameter,
		Value:     value,
		Message:   message,
	}
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for parameter '%s' with value '%v': %s",
		ve.Parameter, ve.Value, ve.Message)
}

// ProcessingStateRepository tracks the running operation
type ProcessingStateRepository struct {
	mu    sync.RWMutex
	state ProcessingState
}

func NewProcessingStateRepository() *ProcessingStateRepository {
	return &ProcessingStateRepository{}
}

func (psr *ProcessingStateRepository) GetState() ProcessingState {
	psr.mu.RLock()
	defer psr.mu.RUnlock()

	state := psr.state
	state.Stages = append([]string(nil), psr.state.Stages...)
	return state
}

func (psr *ProcessingStateRepository) StartProcessing(operation string) {
	psr.mu.Lock()
	defer psr.mu.Unlock()

	psr.state = ProcessingState{
		IsActive:     true,
		Operation:    operation,
		CurrentStage: "Initializing",
		StartTime:    time.Now(),
	}
}

func (psr *ProcessingStateRepository) UpdateStage(stage string) {
	psr.mu.Lock()
	defer psr.mu.Unlock()

	if psr.state.IsActive {
		psr.state.CurrentStage = stage
		psr.state.Stages = append(psr.state.Stages, stage)
	}
}

func (psr *ProcessingStateRepository) CompleteProcessing() {
	psr.mu.Lock()
	defer psr.mu.Unlock()

	psr.state.IsActive = false
	psr.state.CurrentStage = "Complete"
}

func (psr *ProcessingStateRepository) CancelProcessing() {
	psr.mu.Lock()
	defer psr.mu.Unlock()

	psr.state.IsActive = false
	psr.state.CurrentStage = "Cancelled"
}
