package tuning

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz       int     `yaml:"tick_rate_hz"`
	BlackboardTTLMs  int     `yaml:"blackboard_ttl_ms"`
	SensoryTTLMs     int     `yaml:"sensory_ttl_ms"`
	ReplanCooldownMs int     `yaml:"replan_cooldown_ms"`
	VisionRadius     float64 `yaml:"vision_radius"`
	PlannerSeed      uint64  `yaml:"planner_seed"`
	Workers          int     `yaml:"workers"`

	Sandbox Sandbox `yaml:"sandbox"`
}

type Sandbox struct {
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	Speed         float64 `yaml:"speed"`
	HungerEveryMs int     `yaml:"hunger_every_ms"`
	FoodCount     int     `yaml:"food_count"`
	FoodNutrition int     `yaml:"food_nutrition"`
	AgentCount    int     `yaml:"agent_count"`
	SatietyMax    int     `yaml:"satiety_max"`
	HungryAt      int     `yaml:"hungry_at"`
	Walls         int     `yaml:"walls"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:       10,
		BlackboardTTLMs:  2000,
		SensoryTTLMs:     2000,
		ReplanCooldownMs: 500,
		VisionRadius:     10,
		PlannerSeed:      1,
		Workers:          1,
		Sandbox: Sandbox{
			Width:         32,
			Height:        32,
			Speed:         4,
			HungerEveryMs: 5000,
			FoodCount:     12,
			FoodNutrition: 3,
			AgentCount:    6,
			SatietyMax:    20,
			HungryAt:      8,
		},
	}
}

// Load reads path over Defaults, so keys missing from the file keep their
// default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %d", name, v))
		}
	}
	nonNegative := func(name string, v int) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %d", name, v))
		}
	}
	positive("tick_rate_hz", t.TickRateHz)
	positive("blackboard_ttl_ms", t.BlackboardTTLMs)
	positive("sensory_ttl_ms", t.SensoryTTLMs)
	positive("replan_cooldown_ms", t.ReplanCooldownMs)
	nonNegative("workers", t.Workers)
	if t.VisionRadius <= 0 {
		errs = append(errs, fmt.Errorf("vision_radius must be > 0, got %v", t.VisionRadius))
	}

	s := t.Sandbox
	positive("sandbox.width", s.Width)
	positive("sandbox.height", s.Height)
	positive("sandbox.satiety_max", s.SatietyMax)
	nonNegative("sandbox.hunger_every_ms", s.HungerEveryMs)
	nonNegative("sandbox.food_count", s.FoodCount)
	nonNegative("sandbox.food_nutrition", s.FoodNutrition)
	nonNegative("sandbox.agent_count", s.AgentCount)
	nonNegative("sandbox.walls", s.Walls)
	if s.Speed <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.speed must be > 0, got %v", s.Speed))
	}
	if s.HungryAt < 0 || s.HungryAt > s.SatietyMax {
		errs = append(errs, fmt.Errorf("sandbox.hungry_at must be in [0,%d], got %d", s.SatietyMax, s.HungryAt))
	}
	if s.Width > 0 && s.Height > 0 && s.AgentCount+s.FoodCount+s.Walls > s.Width*s.Height {
		errs = append(errs, fmt.Errorf("sandbox: %d agents, %d food and %d walls do not fit %dx%d",
			s.AgentCount, s.FoodCount, s.Walls, s.Width, s.Height))
	}
	return errors.Join(errs...)
}

func (t Tuning) TickDuration() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) BlackboardTTL() time.Duration  { return ms(t.BlackboardTTLMs) }
func (t Tuning) SensoryTTL() time.Duration     { return ms(t.SensoryTTLMs) }
func (t Tuning) ReplanCooldown() time.Duration { return ms(t.ReplanCooldownMs) }
func (s Sandbox) HungerEvery() time.Duration   { return ms(s.HungerEveryMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
