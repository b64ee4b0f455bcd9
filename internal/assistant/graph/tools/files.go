package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const (
	ToolListExplorerTabs  = "list_explorer_tabs"
	ToolSwitchExplorerTab = "switch_explorer_tab"
	ToolNewExplorerTab    = "new_explorer_tab"
	ToolCloseExplorerTab  = "close_explorer_tab"
	ToolOpenFolder        = "open_folder"
	ToolReadFile          = "read_file"
	ToolCopyItem          = "copy_item"
	ToolCutItem           = "cut_item"
	ToolPasteItem         = "paste_item"
	ToolDeleteItem        = "delete_item"
	ToolCreateItem        = "create_item"

	maxListing = 100
)

type PathInput struct {
	Path string `json:"path"`
}

type CreateInput struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	ItemType string `json:"item_type"`
}

func fileTools(fm FileManager, timeout time.Duration) []tool.InvokableTool {
	pathParams := func(desc string) *schema.ParamsOneOf {
		return params(map[string]*schema.ParameterInfo{"path": str(desc, true)})
	}
	tabParams := params(map[string]*schema.ParameterInfo{
		"tab_index": integer("0-based explorer tab index.", true),
	})

	return []tool.InvokableTool{
		newTextTool(&schema.ToolInfo{
			Name:        ToolListExplorerTabs,
			Desc:        "List open file explorer tabs with their 0-based index and folder.",
			ParamsOneOf: noParams(),
		}, "list explorer tabs", timeout, func(ctx context.Context, _ *EmptyInput) (string, error) {
			if fm == nil {
				return "", ErrUnavailable
			}
			tabs, err := fm.Tabs(ctx)
			if err != nil {
				return "", err
			}
			return FormatTabs(tabs), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolSwitchExplorerTab,
			Desc:        "Switch to the explorer tab at a 0-based index.",
			ParamsOneOf: tabParams,
		}, "switch explorer tab", timeout, func(ctx context.Context, in *TabInput) (string, error) {
			if fm == nil {
				return "", ErrUnavailable
			}
			tabs, err := fm.Tabs(ctx)
			if err != nil {
				return "", err
			}
			if in.TabIndex < 0 || in.TabIndex >= len(tabs) {
				return fmt.Sprintf("Error: tab index %d out of range (0-%d)", in.TabIndex, len(tabs)-1), nil
			}
			if _, err := fm.SwitchTab(ctx, in.TabIndex); err != nil {
				return "", err
			}
			return fmt.Sprintf("File Manager has switched to tab no: %d", in.TabIndex+1), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolNewExplorerTab,
			Desc:        "Open a new explorer tab at a folder.",
			ParamsOneOf: pathParams("Folder to open in the new tab."),
		}, "open explorer tab", timeout, func(ctx context.Context, in *PathInput) (string, error) {
			if err := needPath(fm, in.Path); err != nil {
				return "", err
			}
			tab, err := fm.NewTab(ctx, in.Path)
			if err != nil {
				return "", err
			}
			return "New File Manager tab opened at: " + tab.URL, nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolCloseExplorerTab,
			Desc:        "Close the explorer tab at a 0-based index.",
			ParamsOneOf: tabParams,
		}, "close explorer tab", timeout, func(ctx context.Context, in *TabInput) (string, error) {
			if fm == nil {
				return "", ErrUnavailable
			}
			tabs, err := fm.Tabs(ctx)
			if err != nil {
				return "", err
			}
			if in.TabIndex < 0 || in.TabIndex >= len(tabs) {
				return "Invalid tab index", nil
			}
			if err := fm.CloseTab(ctx, in.TabIndex); err != nil {
				return "", err
			}
			return fmt.Sprintf("Closed explorer tab %d (%s)", in.TabIndex+1, tabs[in.TabIndex].Title), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolOpenFolder,
			Desc:        "Open a folder in the active explorer tab and list its contents.",
			ParamsOneOf: pathParams("Absolute folder path inside the allowed folders."),
		}, "open folder", timeout, func(ctx context.Context, in *PathInput) (string, error) {
			if err := needPath(fm, in.Path); err != nil {
				return "", err
			}
			entries, err := fm.OpenFolder(ctx, in.Path)
			if err != nil {
				return "", err
			}
			return formatListing(in.Path, entries), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolReadFile,
			Desc:        "Read a text file and return its content.",
			ParamsOneOf: pathParams("Absolute file path inside the allowed folders."),
		}, "read file", timeout, func(ctx context.Context, in *PathInput) (string, error) {
			if err := needPath(fm, in.Path); err != nil {
				return "", err
			}
			text, err := fm.ReadFile(ctx, in.Path)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Sprintf("'%s' is empty.", in.Path), nil
			}
			return text, nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolCopyItem,
			Desc:        "Copy a file or folder to the clipboard.",
			ParamsOneOf: pathParams("Absolute path of the item to copy."),
		}, "copy", timeout, func(ctx context.Context, in *PathInput) (string, error) {
			if err := needPath(fm, in.Path); err != nil {
				return "", err
			}
			if err := fm.Copy(ctx, in.Path); err != nil {
				return "", err
			}
			return fmt.Sprintf("'%s' copied to clipboard.", in.Path), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolCutItem,
			Desc:        "Cut a file or folder to the clipboard. It moves on paste.",
			ParamsOneOf: pathParams("Absolute path of the item to cut."),
		}, "cut", timeout, func(ctx context.Context, in *PathInput) (string, error) {
			if err := needPath(fm, in.Path); err != nil {
				return "", err
			}
			if err := fm.Cut(ctx, in.Path); err != nil {
				return "", err
			}
			return fmt.Sprintf("'%s' cut to clipboard.", in.Path), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolPasteItem,
			Desc:        "Paste the clipboard item into a folder.",
			ParamsOneOf: pathParams("Destination folder."),
		}, "paste", timeout, func(ctx context.Context, in *PathInput) (string, error) {
			if err := needPath(fm, in.Path); err != nil {
				return "", err
			}
			return fm.Paste(ctx, in.Path)
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolDeleteItem,
			Desc:        "Delete a file or folder.",
			ParamsOneOf: pathParams("Absolute path of the item to delete."),
		}, "delete", timeout, func(ctx context.Context, in *PathInput) (string, error) {
			if err := needPath(fm, in.Path); err != nil {
				return "", err
			}
			if err := fm.Delete(ctx, in.Path); err != nil {
				return "", err
			}
			return fmt.Sprintf("'%s' deleted.", in.Path), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name: ToolCreateItem,
			Desc: "Create an empty file or a folder.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"path":      str("Parent folder.", true),
				"name":      str("Name of the new item.", true),
				"item_type": {Type: schema.String, Desc: "file or folder.", Enum: []string{"file", "folder"}, Required: true},
			}),
		}, "create item", timeout, func(ctx context.Context, in *CreateInput) (string, error) {
			if fm == nil {
				return "", ErrUnavailable
			}
			if strings.TrimSpace(in.Path) == "" || strings.TrimSpace(in.Name) == "" {
				return "", errors.New("path and name are required")
			}
			full := filepath.Join(in.Path, in.Name)
			switch strings.ToLower(strings.TrimSpace(in.ItemType)) {
			case "folder", "directory":
				if err := fm.Create(ctx, full, true); err != nil {
					return "", err
				}
				return "Folder created: " + full, nil
			case "file":
				if err := fm.Create(ctx, full, false); err != nil {
					return "", err
				}
				return "File created: " + full, nil
			default:
				return "Invalid item_type. Use 'file' or 'folder'.", nil
			}
		}),
	}
}

func needPath(fm FileManager, path string) error {
	if fm == nil {
		return ErrUnavailable
	}
	if strings.TrimSpace(path) == "" {
		return errors.New("path is required")
	}
	return nil
}

func formatListing(path string, entries []Entry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("Opened folder '%s'. It is empty.", path)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Opened folder '%s' (%d items):\n", path, len(entries))
	for i, e := range entries {
		if i == maxListing {
			fmt.Fprintf(&b, "... and %d more", len(entries)-maxListing)
			break
		}
		if e.IsDir {
			fmt.Fprintf(&b, "[dir]  %s\n", e.Name)
		} else {
			fmt.Fprintf(&b, "[file] %s (%d bytes)\n", e.Name, e.Size)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
