package tools

import "github.com/HendryAvila/substrate/internal/navigation"

// defaultFollowUps are the hints shown after reference tools when no
// workflow suggests anything. Param values are evaluated against the
// arguments of the finished call.
var defaultFollowUps = map[string][]navigation.FollowUp{
	"create_ref": {
		{Tool: "read_ref", Reason: "Read the saved reference", Params: map[string]string{"ref": "$inputs.ref"}},
		{Tool: "list_refs", Reason: "View all references"},
		{Tool: "synapse:enhance_prompt", Reason: "Enhance the saved content", Params: map[string]string{"prompt_ref": "$inputs.ref"}},
	},
	"read_ref": {
		{Tool: "update_ref", Reason: "Update the reference content", Params: map[string]string{"ref": "$inputs.ref"}},
		{Tool: "execute", Reason: "Execute it as a pattern", Params: map[string]string{"prompt_ref": "$inputs.ref"}},
		{Tool: "synapse:enhance_prompt", Reason: "Enhance the content", Params: map[string]string{"prompt_ref": "$inputs.ref"}},
	},
	"update_ref": {
		{Tool: "read_ref", Reason: "Check the updated reference", Params: map[string]string{"ref": "$inputs.ref"}},
	},
	"delete_ref": {
		{Tool: "list_refs", Reason: "View the remaining references"},
	},
	"list_refs": {
		{Tool: "read_ref", Reason: "Read one of the listed references"},
		{Tool: "create_ref", Reason: "Add a new reference"},
	},
	"execute": {
		{Tool: "read_ref", Reason: "Read the saved result", Params: map[string]string{"ref": "$inputs.save_as"}},
		{Tool: "tloen:platform_format", Reason: "Format the result for a platform", Params: map[string]string{"prompt_ref": "$inputs.save_as"}},
	},
	"show_workflows": {
		{Tool: "workflow_guide", Reason: "See the steps of a workflow"},
		{Tool: "workflow_begin", Reason: "Start a workflow run"},
	},
	"workflow_guide": {
		{Tool: "workflow_begin", Reason: "Start this workflow", Params: map[string]string{"workflow_name": "$inputs.workflow_name"}},
	},
}

// RegisterFollowUps installs the default follow-up hints on engine.
func RegisterFollowUps(engine *navigation.Engine) error {
	for tool, hints := range defaultFollowUps {
		if err := engine.AddFollowUps(tool, hints...); err != nil {
			return err
		}
	}
	return nil
}
