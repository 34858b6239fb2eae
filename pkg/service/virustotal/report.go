package virustotal

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Section headers of the normalized report, in output order
const (
	SectionFileInfo        = "[File Information]"
	SectionDetectionStats  = "[Detection Summary]"
	SectionDetectionNames  = "[Detection Names]"
	SectionSandboxVerdicts = "[Sandbox Verdicts]"
	SectionImports         = "[Imported Libraries]"
)

const (
	maxDetectionNames = 5
	maxImports        = 5
)

// Optional-field view of a VirusTotal file object. Every member may be
// absent; pointers distinguish absent from zero where it matters.
type fileReport struct {
	Data *struct {
		Attributes *fileAttributes `json:"attributes"`
	} `json:"data"`
}

type fileAttributes struct {
	MeaningfulName      string                    `json:"meaningful_name"`
	Names               []string                  `json:"names"`
	TypeDescription     string                    `json:"type_description"`
	TypeTag             string                    `json:"type_tag"`
	Size                *int64                    `json:"size"`
	LastAnalysisStats   *analysisStats            `json:"last_analysis_stats"`
	LastAnalysisResults map[string]*engineResult  `json:"last_analysis_results"`
	SandboxVerdicts     map[string]*sandboxResult `json:"sandbox_verdicts"`
	PEInfo              *peInfo                   `json:"pe_info"`
}

type analysisStats struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Harmless   int `json:"harmless"`
	Undetected int `json:"undetected"`
}

type engineResult struct {
	Category string `json:"category"`
	Result   string `json:"result"`
}

type sandboxResult struct {
	SandboxName           string   `json:"sandbox_name"`
	Category              string   `json:"category"`
	MalwareClassification []string `json:"malware_classification"`
}

type peInfo struct {
	ImportList []*importEntry `json:"import_list"`
}

type importEntry struct {
	LibraryName       string   `json:"library_name"`
	ImportedFunctions []string `json:"imported_functions"`
}

// networkImports are ws2_32.dll functions worth calling out as network
// capability hints.
var networkImports = []string{"socket", "connect", "send", "recv"}

// Normalize renders a raw VirusTotal file report as fixed-section text. It
// never fails: missing or mistyped members degrade to placeholder lines and
// all five section headers are always present.
func (c *Client) Normalize(raw []byte) string {
	return Normalize(raw)
}

// Normalize is the stateless form of (*Client).Normalize
func Normalize(raw []byte) string {
	var report fileReport
	err := json.Unmarshal(raw, &report)

	// A type mismatch on one member still leaves the others decoded
	var typeErr *json.UnmarshalTypeError
	if err != nil && !errors.As(err, &typeErr) {
		return render(nil, "- VirusTotal response is not valid JSON.")
	}

	if report.Data == nil || report.Data.Attributes == nil {
		return render(nil, "- No attributes found in VirusTotal response.")
	}
	return render(report.Data.Attributes, "")
}

func render(attr *fileAttributes, fileInfoError string) string {
	var b strings.Builder

	writeSection := func(header string, lines []string, placeholder string) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(header + "\n")
		if len(lines) == 0 {
			b.WriteString(placeholder + "\n")
			return
		}
		for _, l := range lines {
			b.WriteString(l + "\n")
		}
	}

	if attr == nil {
		writeSection(SectionFileInfo, nil, fileInfoError)
		writeSection(SectionDetectionStats, nil, "- No detection statistics available.")
		writeSection(SectionDetectionNames, nil, "- No detection names reported.")
		writeSection(SectionSandboxVerdicts, nil, "- No sandbox verdicts reported.")
		writeSection(SectionImports, nil, "- No import information available.")
		return b.String()
	}

	writeSection(SectionFileInfo, fileInfoLines(attr), "")
	writeSection(SectionDetectionStats, statsLines(attr), "- No detection statistics available.")
	writeSection(SectionDetectionNames, detectionNameLines(attr), "- No detection names reported.")
	writeSection(SectionSandboxVerdicts, sandboxLines(attr), "- No sandbox verdicts reported.")
	writeSection(SectionImports, importLines(attr), "- No import information available.")
	return b.String()
}

func fileInfoLines(attr *fileAttributes) []string {
	name := attr.MeaningfulName
	if name == "" {
		for _, n := range attr.Names {
			if n != "" {
				name = n
				break
			}
		}
	}
	if name == "" {
		name = "Unknown"
	}

	fileType := attr.TypeDescription
	if fileType == "" {
		fileType = attr.TypeTag
	}
	if fileType == "" {
		fileType = "Unknown"
	}

	size := "Unknown"
	if attr.Size != nil {
		size = fmt.Sprintf("%d bytes", *attr.Size)
	}

	return []string{
		"- Name: " + name,
		"- Type: " + fileType,
		"- Size: " + size,
	}
}

func statsLines(attr *fileAttributes) []string {
	s := attr.LastAnalysisStats
	if s == nil {
		return nil
	}
	return []string{
		fmt.Sprintf("- Malicious: %d, Suspicious: %d, Harmless: %d, Undetected: %d",
			s.Malicious, s.Suspicious, s.Harmless, s.Undetected),
	}
}

func detectionNameLines(attr *fileAttributes) []string {
	engines := make([]string, 0, len(attr.LastAnalysisResults))
	for engine := range attr.LastAnalysisResults {
		engines = append(engines, engine)
	}
	slices.Sort(engines)

	var lines []string
	seen := make(map[string]struct{})
	for _, engine := range engines {
		r := attr.LastAnalysisResults[engine]
		if r == nil || strings.TrimSpace(r.Result) == "" {
			continue
		}
		if _, ok := seen[r.Result]; ok {
			continue
		}
		seen[r.Result] = struct{}{}
		lines = append(lines, "- "+r.Result)
		if len(lines) == maxDetectionNames {
			break
		}
	}
	return lines
}

func sandboxLines(attr *fileAttributes) []string {
	keys := make([]string, 0, len(attr.SandboxVerdicts))
	for k := range attr.SandboxVerdicts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var lines []string
	for _, k := range keys {
		v := attr.SandboxVerdicts[k]
		if v == nil {
			continue
		}
		name := v.SandboxName
		if name == "" {
			name = k
		}
		category := v.Category
		if category == "" {
			category = "unknown"
		}

		line := fmt.Sprintf("- %s: %s", name, category)
		var tags []string
		for _, t := range v.MalwareClassification {
			if t != "" {
				tags = append(tags, t)
			}
		}
		if len(tags) > 0 {
			line += " (" + strings.Join(tags, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

func importLines(attr *fileAttributes) []string {
	if attr.PEInfo == nil {
		return nil
	}

	var lines []string
	for _, imp := range attr.PEInfo.ImportList {
		if imp == nil || imp.LibraryName == "" {
			continue
		}
		line := "- " + imp.LibraryName
		if strings.EqualFold(imp.LibraryName, "ws2_32.dll") {
			var netFuncs []string
			for _, fn := range imp.ImportedFunctions {
				if slices.Contains(networkImports, fn) {
					netFuncs = append(netFuncs, fn)
				}
			}
			if len(netFuncs) > 0 {
				line += " (network functions: " + strings.Join(netFuncs, ", ") + ")"
			}
		}
		lines = append(lines, line)
		if len(lines) == maxImports {
			break
		}
	}
	return lines
}
