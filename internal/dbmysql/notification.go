package dbmysql

import (
	"time"

	"recruitdesk/internal/common"
)

// Notification is the persistence model behind the REST contract.
// Deleted rows stay in the table; every read path filters them out.
type Notification struct {
	ID            string  `gorm:"primaryKey;size:36"`
	UserID        string  `gorm:"not null;index;size:36"`
	Message       string  `gorm:"not null;type:text"`
	Category      string  `gorm:"not null;size:50"`
	IsRead        bool    `gorm:"not null;default:false;index"`
	ReadAt        *time.Time
	Deleted       bool    `gorm:"not null;default:false;index"`
	ApplicationID *string `gorm:"size:36"`
	JobID         *string `gorm:"size:36"`
	ApplicantID   *string `gorm:"size:36"`
	Metadata      common.Metadata `gorm:"type:json"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
}

func (n *Notification) toDomain() common.Notification {
	return common.Notification{
		ID:            n.ID,
		RecipientID:   n.UserID,
		Message:       n.Message,
		Category:      common.ParseCategory(n.Category),
		IsRead:        n.IsRead,
		ReadAt:        n.ReadAt,
		Deleted:       n.Deleted,
		ApplicationID: n.ApplicationID,
		JobID:         n.JobID,
		ApplicantID:   n.ApplicantID,
		Metadata:      n.Metadata,
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
	}
}

func fromDomain(n *common.Notification) *Notification {
	return &Notification{
		ID:            n.ID,
		UserID:        n.RecipientID,
		Message:       n.Message,
		Category:      n.Category.String(),
		IsRead:        n.IsRead,
		ReadAt:        n.ReadAt,
		Deleted:       n.Deleted,
		ApplicationID: n.ApplicationID,
		JobID:         n.JobID,
		ApplicantID:   n.ApplicantID,
		Metadata:      n.Metadata,
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
	}
}
