package repos

import (
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/repos/jobs"
	"github.com/sciflow/sciflow-db/internal/data/repos/quota"
	"github.com/sciflow/sciflow-db/internal/data/repos/retention"
	"github.com/sciflow/sciflow-db/internal/data/repos/sessions"
	"github.com/sciflow/sciflow-db/internal/data/repos/users"
	"github.com/sciflow/sciflow-db/internal/data/repos/workflows"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// Repos bundles every repository over one database handle.
type Repos struct {
	User             users.UserRepo
	UserToken        users.UserTokenRepo
	AuditLog         users.AuditLogRepo
	Workflow         workflows.WorkflowRepo
	Job              jobs.JobRepo
	JobCache         jobs.JobCacheRepo
	Session          sessions.SessionRepo
	Resource         quota.ResourceRepo
	UserResource     quota.UserResourceRepo
	WorkflowResource quota.WorkflowResourceRepo
	SessionResource  quota.SessionResourceRepo
	RetentionRule    retention.RuleRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:             users.NewUserRepo(db, log),
		UserToken:        users.NewUserTokenRepo(db, log),
		AuditLog:         users.NewAuditLogRepo(db, log),
		Workflow:         workflows.NewWorkflowRepo(db, log),
		Job:              jobs.NewJobRepo(db, log),
		JobCache:         jobs.NewJobCacheRepo(db, log),
		Session:          sessions.NewSessionRepo(db, log),
		Resource:         quota.NewResourceRepo(db, log),
		UserResource:     quota.NewUserResourceRepo(db, log),
		WorkflowResource: quota.NewWorkflowResourceRepo(db, log),
		SessionResource:  quota.NewSessionResourceRepo(db, log),
		RetentionRule:    retention.NewRuleRepo(db, log),
	}
}
