package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

type UserDB struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	UserID    string    `bun:"user_id,pk" json:"user_id"`
	Email     string    `bun:"email" json:"email"`
	Tokens    int64     `bun:"tokens,notnull,default:0" json:"tokens"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (u *UserDB) ToUser() *User {
	return &User{
		ID:        u.UserID,
		Email:     u.Email,
		Tokens:    u.Tokens,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func UserFromDomain(u *User) *UserDB {
	return &UserDB{
		UserID:    u.ID,
		Email:     u.Email,
		Tokens:    u.Tokens,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// ArtifactDB stores the fitted state, transform spec and metrics in one row so
// that an artifact is either fully visible or absent.
type ArtifactDB struct {
	bun.BaseModel `bun:"table:ml_models,alias:m"`

	ModelName       string          `bun:"model_name,pk" json:"model_name"`
	OwnerID         string          `bun:"owner_user_id,notnull" json:"owner_user_id"`
	ModelType       ModelType       `bun:"model_type,notnull" json:"model_type"`
	Features        []string        `bun:"features,type:jsonb,notnull" json:"features"`
	Label           string          `bun:"label,notnull" json:"label"`
	Hyperparameters map[string]any  `bun:"hyperparameters,type:jsonb" json:"hyperparameters"`
	Metrics         *Metrics        `bun:"metrics,type:jsonb,notnull" json:"metrics"`
	TransformSpec   *TransformSpec  `bun:"transform_spec,type:jsonb,notnull" json:"transform_spec"`
	FittedState     json.RawMessage `bun:"fitted_state,type:jsonb,notnull" json:"fitted_state"`
	CreatedAt       time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (a *ArtifactDB) ToMeta() ArtifactMeta {
	meta := ArtifactMeta{
		Name:            a.ModelName,
		OwnerID:         a.OwnerID,
		ModelType:       a.ModelType,
		Features:        a.Features,
		Label:           a.Label,
		Hyperparameters: a.Hyperparameters,
		CreatedAt:       a.CreatedAt,
	}
	if a.Metrics != nil {
		meta.Metrics = *a.Metrics
	}
	return meta
}

func (a *ArtifactDB) ToArtifact() *Artifact {
	art := &Artifact{
		ArtifactMeta: a.ToMeta(),
		State:        a.FittedState,
	}
	if a.TransformSpec != nil {
		art.Spec = *a.TransformSpec
	}
	return art
}

func ArtifactFromDomain(a *Artifact) *ArtifactDB {
	metrics := a.Metrics
	spec := a.Spec
	return &ArtifactDB{
		ModelName:       a.Name,
		OwnerID:         a.OwnerID,
		ModelType:       a.ModelType,
		Features:        a.Features,
		Label:           a.Label,
		Hyperparameters: a.Hyperparameters,
		Metrics:         &metrics,
		TransformSpec:   &spec,
		FittedState:     a.State,
		CreatedAt:       a.CreatedAt,
	}
}
