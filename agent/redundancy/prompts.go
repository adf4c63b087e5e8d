package redundancy

// SystemPrompt 指示视觉模型比较前后两张截图.
const SystemPrompt = "# Task\n" +
	"You will be given two consecutive screenshots of the user's screen: the previous one and the current one.\n" +
	"The context is that this is a call within an AI-powered assistant that watches the user's screen.\n" +
	"A screenshot is taken every 5 seconds, and the assistant can only keep a limited number of them.\n" +
	"Your job is to decide whether the previous screenshot contains important information that is not present in the current screenshot.\n" +
	"If everything important in the previous screenshot is still visible in the current one, the previous screenshot can be discarded.\n" +
	"\n" +
	"## Format\n" +
	"Answer in a markdown code block in the following format:\n" +
	"```json\n" +
	"{\n" +
	"    \"previous_screenshot_contains_important_information_not_present_in_current_screenshot\": <true or false>\n" +
	"}\n" +
	"```"

const (
	previousCaption = "Previous screenshot"
	currentCaption  = "Current screenshot"
	instruction     = "Determine if the previous screenshot should be discarded."
)
