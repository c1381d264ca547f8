package state

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// projectStateSchemaJSON mirrors model.ProjectState. additionalProperties is
// false at the top level and on every strict sub-object (spec.md §6 Design
// Note: "Dynamic JSON validation -> typed schemas" — every boundary validates
// against a schema rejecting unknown top-level keys). AgentRecord rows are not
// validated here: internal/registry decodes them tolerantly so unknown
// adapterId values are dropped. RecoveryResult is checked only as the strict
// "result" object of each recoveryAttempt below.
const projectStateSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": ["projectName", "rootDir", "phases", "createdAt", "updatedAt"],
  "properties": {
    "projectName": {"type": "string", "minLength": 1},
    "rootDir": {"type": "string", "minLength": 1},
    "phases": {"type": "array", "items": {"$ref": "#/definitions/phase"}},
    "activePhaseId": {"type": "string"},
    "createdAt": {"type": "string"},
    "updatedAt": {"type": "string"}
  },
  "definitions": {
    "phase": {
      "type": "object",
      "additionalProperties": false,
      "required": ["id", "name", "branchName", "status", "tasks"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string", "minLength": 1},
        "branchName": {"type": "string", "minLength": 1},
        "status": {"type": "string", "enum": ["PLANNING", "BRANCHING", "CODING", "CREATING_PR", "AWAITING_CI", "CI_FAILED", "READY_FOR_REVIEW", "DONE"]},
        "tasks": {"type": "array", "items": {"$ref": "#/definitions/task"}},
        "prUrl": {"type": "string"},
        "ciStatusContext": {"type": "string"},
        "failureKind": {"type": "string", "enum": ["LOCAL_TESTER", "REMOTE_CI", "AGENT_FAILURE", "VALIDATION_MAX_RETRIES"]},
        "ciFixCycles": {"type": "integer", "minimum": 0},
        "recoveryAttempts": {"type": "array", "items": {"$ref": "#/definitions/recoveryAttempt"}}
      }
    },
    "task": {
      "type": "object",
      "additionalProperties": false,
      "required": ["id", "title", "description", "status", "assignee"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "title": {"type": "string"},
        "description": {"type": "string"},
        "status": {"type": "string", "enum": ["TODO", "IN_PROGRESS", "DONE", "FAILED", "CI_FIX"]},
        "assignee": {"type": "string", "enum": ["CODEX_CLI", "CLAUDE_CLI", "GEMINI_CLI", "MOCK_CLI", "UNASSIGNED"]},
        "dependencies": {"type": "array", "items": {"type": "string"}},
        "resultContext": {"type": "string"},
        "errorLogs": {"type": "string"},
        "errorCategory": {"type": "string", "enum": ["DIRTY_WORKTREE", "MISSING_COMMIT", "AGENT_FAILURE", "UNKNOWN"]},
        "recoveryAttempts": {"type": "array", "items": {"$ref": "#/definitions/recoveryAttempt"}}
      }
    },
    "recoveryAttempt": {
      "type": "object",
      "additionalProperties": false,
      "required": ["id", "occurredAt", "attemptNumber", "exception", "result"],
      "properties": {
        "id": {"type": "string"},
        "occurredAt": {"type": "string"},
        "attemptNumber": {"type": "integer", "minimum": 1},
        "exception": {
          "type": "object",
          "additionalProperties": false,
          "required": ["category", "message"],
          "properties": {
            "category": {"type": "string", "enum": ["DIRTY_WORKTREE", "MISSING_COMMIT", "AGENT_FAILURE", "UNKNOWN"]},
            "message": {"type": "string"},
            "phaseId": {"type": "string"},
            "taskId": {"type": "string"}
          }
        },
        "result": {
          "type": "object",
          "additionalProperties": false,
          "required": ["status", "reasoning"],
          "properties": {
            "status": {"type": "string", "enum": ["fixed", "unfixable"]},
            "reasoning": {"type": "string"},
            "actionsTaken": {"type": "array", "items": {"type": "string"}},
            "filesTouched": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    }
  }
}`

var (
	compileOnce     sync.Once
	projectStateSch *jsonschema.Schema
	compileErr      error
)

func projectStateSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("projectstate.json", strings.NewReader(projectStateSchemaJSON)); err != nil {
			compileErr = err
			return
		}
		projectStateSch, compileErr = c.Compile("projectstate.json")
	})
	return projectStateSch, compileErr
}
