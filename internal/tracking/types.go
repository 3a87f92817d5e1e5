package tracking

import "trackcore/pkg/metadata"

type (
	Model                  = metadata.Model
	EntityType             = metadata.EntityType
	Property               = metadata.Property
	Key                    = metadata.Key
	ForeignKey             = metadata.ForeignKey
	Navigation             = metadata.Navigation
	ChangeTrackingStrategy = metadata.ChangeTrackingStrategy
	DeleteBehavior         = metadata.DeleteBehavior
)

const (
	SnapshotStrategy        = metadata.Snapshot
	ChangedOnlyStrategy     = metadata.ChangedNotifications
	ChangingChangedStrategy = metadata.ChangingAndChangedNotifications
	DeleteNoAction          = metadata.NoAction
	DeleteSetNull           = metadata.SetNull
	DeleteCascade           = metadata.Cascade
)
