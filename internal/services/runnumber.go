package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sciflow/sciflow-db/internal/data/repos/workflows"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// RunNumberService assigns (major, minor) run numbers within one
// (owner, name) workflow family. The first-ever run is always (1, 0);
// restarts hold the major fixed and increment the minor without cap.
//
// Allocation is a read-then-insert sequence, so callers insert inside
// the same transaction and retry on a unique-constraint conflict.
type RunNumberService interface {
	Allocate(dbc dbctx.Context, ownerID uuid.UUID, name string, isRestart bool, requested string) (int, int, error)
}

type runNumberService struct {
	log          *logger.Logger
	workflowRepo workflows.WorkflowRepo
}

func NewRunNumberService(log *logger.Logger, workflowRepo workflows.WorkflowRepo) RunNumberService {
	return &runNumberService{
		log:          log.With("service", "RunNumberService"),
		workflowRepo: workflowRepo,
	}
}

func (rs *runNumberService) Allocate(dbc dbctx.Context, ownerID uuid.UUID, name string, isRestart bool, requested string) (int, int, error) {
	if requested != "" {
		major, _, perr := parseRunNumber(requested)
		if perr != nil {
			return 0, 0, perr
		}
		return rs.allocateInMajor(dbc, ownerID, name, major, isRestart)
	}

	latest, err := rs.workflowRepo.GetLatestNonRestart(dbc, ownerID, name)
	if err != nil {
		return 0, 0, err
	}
	if latest == nil {
		if isRestart {
			return 0, 0, types.NewError(types.CodeValidation, "run_numbers.allocate",
				fmt.Sprintf("cannot restart workflow %q: it was never run", name), nil)
		}
		return 1, 0, nil
	}
	if !isRestart {
		return latest.RunNumberMajor + 1, 0, nil
	}
	// The non-restart run anchors the major; the minor continues past
	// any earlier restarts of the same run.
	return rs.allocateInMajor(dbc, ownerID, name, latest.RunNumberMajor, isRestart)
}

func (rs *runNumberService) allocateInMajor(dbc dbctx.Context, ownerID uuid.UUID, name string, major int, isRestart bool) (int, int, error) {
	base, err := rs.workflowRepo.GetLatestInMajor(dbc, ownerID, name, major)
	if err != nil {
		return 0, 0, err
	}
	if base == nil {
		if isRestart {
			return 0, 0, types.NewError(types.CodeValidation, "run_numbers.allocate",
				fmt.Sprintf("cannot restart workflow %q: it was never run", name), nil)
		}
		return 1, 0, nil
	}
	if isRestart {
		return base.RunNumberMajor, base.RunNumberMinor + 1, nil
	}
	return base.RunNumberMajor + 1, 0, nil
}

// parseRunNumber accepts "major" or "major.minor".
func parseRunNumber(raw string) (int, int, error) {
	parts := strings.SplitN(raw, ".", 2)
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 1 {
		return 0, 0, types.NewError(types.CodeValidation, "run_numbers.parse",
			fmt.Sprintf("invalid run number %q", raw), nil)
	}
	minor := 0
	if len(parts) == 2 {
		minor, err = strconv.Atoi(parts[1])
		if err != nil || minor < 0 {
			return 0, 0, types.NewError(types.CodeValidation, "run_numbers.parse",
				fmt.Sprintf("invalid run number %q", raw), nil)
		}
	}
	return major, minor, nil
}
