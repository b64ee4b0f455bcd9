package nodes

// Node keys. Classifier edges return these as labels.
const (
	NodeInput    = "input"
	NodeChatbot  = "chatbot"
	NodeOutput   = "output"
	NodeSearch   = "network_search"
	NodeBrowser  = "browser_node"
	NodeSystem   = "system_node"
	NodeSoftware = "software_node"
	NodeYouTube  = "youtube_node"

	NodeCalendar       = "calendar_node"
	NodeCalendarCreate = "calendar_create"
	NodeCalendarUpdate = "calendar_update"
	NodeCalendarDelete = "calendar_delete"
	NodeCalendarFinal  = "calendar_final"

	NodeChrome      = "chrome_node"
	NodeChromeTab   = "chrome_tab_node"
	NodeChromeFunc  = "chrome_func_node"
	NodeChromeClose = "chrome_close_node"

	NodeFiles      = "filemanager_node"
	NodeFilesTab   = "filemanager_tab_node"
	NodeFilesRead  = "filemanager_read_node"
	NodeFilesWrite = "filemanager_write_node"
	NodeFilesClose = "filemanager_close_node"

	NodeKeyboard         = "keyboard_node"
	NodeKeyboardHotkey   = "keyboard_hotkey"
	NodeKeyboardPresskey = "keyboard_presskey"
	NodeKeyboardWrite    = "keyboard_write"

	NodeToolModel    = "tool_model"
	NodeToolExecutor = "tool_executor"
)
