package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/graph/extract"
	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
)

const (
	ToolOpenApp       = "open_app"
	ToolCheckSoftware = "check_software"
	ToolCheckHarmful  = "check_harmful_software"
)

type AppInput struct {
	AppName string `json:"app_name"`
}

type HarmfulInput struct {
	Query string `json:"query,omitempty"`
}

// HarmfulReport is the structured answer of the harmful software check.
type HarmfulReport struct {
	Harmful []struct {
		Name   string `json:"name"`
		Reason string `json:"reason"`
	} `json:"harmful"`
	Summary string `json:"summary"`
}

const harmfulSchema = `{"harmful": [{"name": string, "reason": string}], "summary": string}`

func softwareTools(sw Software, m model.BaseChatModel, r *prompts.Renderer, timeout time.Duration) []tool.InvokableTool {
	appParams := params(map[string]*schema.ParameterInfo{
		"app_name": str("Application name as the user said it, e.g. firefox or visual studio code.", true),
	})

	return []tool.InvokableTool{
		newTextTool(&schema.ToolInfo{
			Name:        ToolOpenApp,
			Desc:        "Launch an installed application by name.",
			ParamsOneOf: appParams,
		}, "open application", timeout, func(ctx context.Context, in *AppInput) (string, error) {
			if err := needApp(sw, in.AppName); err != nil {
				return "", err
			}
			if _, ok, err := sw.Find(ctx, in.AppName); err != nil {
				return "", err
			} else if !ok {
				return fmt.Sprintf("Application '%s' not found in system", in.AppName), nil
			}
			app, err := sw.Open(ctx, in.AppName)
			if err != nil {
				return "", err
			}
			return "Successfully opened " + app.Name, nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolCheckSoftware,
			Desc:        "Check whether an application is installed.",
			ParamsOneOf: appParams,
		}, "check application", timeout, func(ctx context.Context, in *AppInput) (string, error) {
			if err := needApp(sw, in.AppName); err != nil {
				return "", err
			}
			app, ok, err := sw.Find(ctx, in.AppName)
			if err != nil {
				return "", err
			}
			if !ok {
				return fmt.Sprintf("Application '%s' not found in system", in.AppName), nil
			}
			if app.Running {
				return fmt.Sprintf("Found: %s (running)", app.Name), nil
			}
			return "Found: " + app.Name, nil
		}),

		newTextTool(&schema.ToolInfo{
			Name: ToolCheckHarmful,
			Desc: "Review installed applications for malware, adware or other risky software.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"query": str("Optional focus for the review.", false),
			}),
		}, "check for harmful software", timeout, func(ctx context.Context, in *HarmfulInput) (string, error) {
			if sw == nil || m == nil || r == nil {
				return "", ErrUnavailable
			}
			apps, err := sw.Installed(ctx)
			if err != nil {
				return "", err
			}
			if len(apps) == 0 {
				return "No applications found or system not supported", nil
			}
			report, err := assessApps(ctx, m, r, apps, in.Query)
			if err != nil {
				return "", err
			}
			return FormatHarmful(report), nil
		}),
	}
}

func assessApps(ctx context.Context, m model.BaseChatModel, r *prompts.Renderer, apps []App, focus string) (HarmfulReport, error) {
	var list strings.Builder
	for _, a := range apps {
		list.WriteString("- " + a.Name + "\n")
	}
	if strings.TrimSpace(focus) == "" {
		focus = "General security scan"
	}
	msgs, err := r.Render(ctx, prompts.HarmfulSoftware, prompts.Vars{"Apps": list.String()}, focus)
	if err != nil {
		return HarmfulReport{}, err
	}
	var report HarmfulReport
	if err := extract.Into(ctx, m, msgs, harmfulSchema, &report); err != nil {
		return HarmfulReport{}, err
	}
	return report, nil
}

// FormatHarmful renders the assessment for the model.
func FormatHarmful(r HarmfulReport) string {
	if len(r.Harmful) == 0 {
		if r.Summary != "" {
			return "No harmful applications found. " + r.Summary
		}
		return "No harmful applications found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d potentially harmful application(s):\n", len(r.Harmful))
	for i, h := range r.Harmful {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, h.Name, h.Reason)
	}
	if r.Summary != "" {
		b.WriteString(r.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func needApp(sw Software, name string) error {
	if sw == nil {
		return ErrUnavailable
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("app_name is required")
	}
	return nil
}
