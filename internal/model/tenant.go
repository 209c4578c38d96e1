package model

import "time"

// TenantStatus is the lifecycle state of a tenant kernel (spec.md §4.11).
type TenantStatus string

const (
	TenantStatusActive      TenantStatus = "active"
	TenantStatusDeactivated TenantStatus = "deactivated"
)

// TenantMetaRow is the GORM-facing row for tenant_meta(key, value): a
// flat key/value store, one row per field, matching spec.md §6
// literally rather than a single wide row.
type TenantMetaRow struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value"`
}

func (TenantMetaRow) TableName() string { return "tenant_meta" }

const (
	tenantMetaKeyTenantID      = "tenantId"
	tenantMetaKeyStatus        = "status"
	tenantMetaKeyCreatedAt     = "createdAt"
	tenantMetaKeyName          = "name"
	tenantMetaKeyPlan          = "plan"
	tenantMetaKeyDeactivatedAt = "deactivatedAt"
)

// TenantMetadata is the domain-facing assembly of every tenant_meta
// row for one tenant.
type TenantMetadata struct {
	TenantID      string
	Status        TenantStatus
	CreatedAt     time.Time
	Name          *string
	Plan          *string
	DeactivatedAt *time.Time
}

// ToRows flattens the struct into tenant_meta rows.
func (m TenantMetadata) ToRows() []TenantMetaRow {
	rows := []TenantMetaRow{
		{Key: tenantMetaKeyTenantID, Value: m.TenantID},
		{Key: tenantMetaKeyStatus, Value: string(m.Status)},
		{Key: tenantMetaKeyCreatedAt, Value: m.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
	if m.Name != nil {
		rows = append(rows, TenantMetaRow{Key: tenantMetaKeyName, Value: *m.Name})
	}
	if m.Plan != nil {
		rows = append(rows, TenantMetaRow{Key: tenantMetaKeyPlan, Value: *m.Plan})
	}
	if m.DeactivatedAt != nil {
		rows = append(rows, TenantMetaRow{Key: tenantMetaKeyDeactivatedAt, Value: m.DeactivatedAt.UTC().Format(time.RFC3339Nano)})
	}
	return rows
}

// TenantMetadataFromRows reassembles the struct from persisted rows.
func TenantMetadataFromRows(rows []TenantMetaRow) TenantMetadata {
	var m TenantMetadata
	for _, r := range rows {
		switch r.Key {
		case tenantMetaKeyTenantID:
			m.TenantID = r.Value
		case tenantMetaKeyStatus:
			m.Status = TenantStatus(r.Value)
		case tenantMetaKeyCreatedAt:
			if t, err := time.Parse(time.RFC3339Nano, r.Value); err == nil {
				m.CreatedAt = t
			}
		case tenantMetaKeyName:
			v := r.Value
			m.Name = &v
		case tenantMetaKeyPlan:
			v := r.Value
			m.Plan = &v
		case tenantMetaKeyDeactivatedAt:
			if t, err := time.Parse(time.RFC3339Nano, r.Value); err == nil {
				m.DeactivatedAt = &t
			}
		}
	}
	return m
}
