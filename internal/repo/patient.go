package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"titra/internal/domain"
)

// GetPatient loads the patient profile from settings.
func (r Repo) GetPatient(ctx context.Context) (domain.Patient, error) {
	raw, err := r.GetSetting(ctx, SettingPatient)
	if err != nil {
		return domain.Patient{}, err
	}
	var p domain.Patient
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.Patient{}, fmt.Errorf("decode patient profile: %w", err)
	}
	return p, nil
}

// SetPatient validates and stores the patient profile.
func (r Repo) SetPatient(ctx context.Context, p domain.Patient) error {
	if p.Surname == "" {
		return errors.New("surname is required")
	}
	if p.Gender != "man" && p.Gender != "lady" {
		return errors.New("gender must be man or lady")
	}
	if p.Age <= 0 {
		return errors.New("age must be positive")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.SetSetting(ctx, SettingPatient, string(raw))
}
