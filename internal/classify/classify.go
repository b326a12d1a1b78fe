// Package classify maps file paths to languages and file roles, and counts
// lines of code with a best-effort comment stripper. All functions are pure
// and deterministic given (path, content).
package classify

import (
	"path"
	"strings"
	"unicode/utf8"
)

// MaxFileSize is the content size ceiling for LOC counting. Larger files are
// counted as files but never decoded.
const MaxFileSize = 1 << 20 // 1 MiB

// OtherLanguage is the sentinel for unrecognized extensions.
const OtherLanguage = "Other"

var languageByExt = map[string]string{
	".py":     "Python",
	".pyw":    "Python",
	".js":     "JavaScript",
	".mjs":    "JavaScript",
	".cjs":    "JavaScript",
	".jsx":    "JavaScript",
	".ts":     "TypeScript",
	".tsx":    "TypeScript",
	".java":   "Java",
	".c":      "C",
	".h":      "C/C++",
	".cpp":    "C++",
	".cc":     "C++",
	".cxx":    "C++",
	".hpp":    "C/C++",
	".cs":     "C#",
	".php":    "PHP",
	".rb":     "Ruby",
	".go":     "Go",
	".rs":     "Rust",
	".swift":  "Swift",
	".kt":     "Kotlin",
	".kts":    "Kotlin",
	".scala":  "Scala",
	".sh":     "Shell",
	".bash":   "Shell",
	".zsh":    "Shell",
	".ps1":    "PowerShell",
	".sql":    "SQL",
	".r":      "R",
	".m":      "Objective-C",
	".mm":     "Objective-C",
	".dart":   "Dart",
	".lua":    "Lua",
	".pl":     "Perl",
	".ex":     "Elixir",
	".exs":    "Elixir",
	".erl":    "Erlang",
	".hs":     "Haskell",
	".clj":    "Clojure",
	".groovy": "Groovy",
	".vue":    "Vue",
	".svelte": "Svelte",
	".html":   "HTML",
	".htm":    "HTML",
	".css":    "CSS",
	".scss":   "CSS",
	".less":   "CSS",
	".xml":    "XML",
	".json":   "JSON",
	".yml":    "YAML",
	".yaml":   "YAML",
	".toml":   "TOML",
	".md":     "Markdown",
	".rst":    "reStructuredText",
	".tf":     "Terraform",
	".proto":  "Protobuf",
	".zig":    "Zig",
	".nim":    "Nim",
	".jl":     "Julia",
	".v":      "V",
	".f90":    "Fortran",
	".asm":    "Assembly",
	".s":      "Assembly",
	".vb":     "Visual Basic",
	".gradle": "Groovy",
}

var binaryExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".svg": true, ".webp": true, ".tiff": true,
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
	".mkv": true, ".flac": true, ".ogg": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true,
	".7z": true, ".rar": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true,
	".o": true, ".obj": true, ".lib": true, ".bin": true, ".class": true,
	".jar": true, ".war": true, ".pyc": true, ".pyo": true, ".wasm": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true, ".eot": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
	".iso": true, ".dmg": true, ".pkg": true, ".deb": true, ".rpm": true,
}

var configNames = map[string]bool{
	".editorconfig": true, ".gitattributes": true, ".gitignore": true,
	".dockerignore": true, ".npmrc": true, ".nvmrc": true, ".babelrc": true,
	".eslintrc": true, ".prettierrc": true, "makefile": true,
	"dockerfile": true, "procfile": true,
}

var configExts = map[string]bool{
	".json": true, ".yml": true, ".yaml": true, ".toml": true, ".ini": true,
	".cfg": true, ".conf": true, ".properties": true, ".env": true,
}

// Path fragments that identify CI/CD definitions.
var cicdFragments = []string{
	".github/workflows",
	".gitlab-ci",
	".circleci",
	".travis.yml",
	"jenkinsfile",
	"azure-pipelines",
	"bitbucket-pipelines",
	".drone.yml",
	"buildkite",
	"cloudbuild",
	".appveyor.yml",
}

// Recognized dependency manifest file names.
var dependencyManifests = map[string]bool{
	"go.mod":           true,
	"go.sum":           true,
	"package.json":     true,
	"yarn.lock":        true,
	"package-lock.json": true,
	"requirements.txt": true,
	"pipfile":          true,
	"pyproject.toml":   true,
	"setup.py":         true,
	"cargo.toml":       true,
	"cargo.lock":       true,
	"pom.xml":          true,
	"build.gradle":     true,
	"build.gradle.kts": true,
	"gemfile":          true,
	"composer.json":    true,
	"mix.exs":          true,
	"pubspec.yaml":     true,
	"build.sbt":        true,
}

// LanguageOf returns the language for a file path based on its extension.
// Unknown extensions map to OtherLanguage.
func LanguageOf(filePath string) string {
	ext := strings.ToLower(path.Ext(filePath))
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return OtherLanguage
}

// IsBinary reports whether the extension marks a file as binary.
func IsBinary(filePath string) bool {
	return binaryExts[strings.ToLower(path.Ext(filePath))]
}

// IsConfig reports whether a file is a configuration file.
func IsConfig(filePath string) bool {
	base := strings.ToLower(path.Base(filePath))
	if configNames[base] {
		return true
	}
	return configExts[strings.ToLower(path.Ext(filePath))]
}

// IsCICD reports whether a path belongs to a CI/CD definition.
func IsCICD(filePath string) bool {
	lower := strings.ToLower(filePath)
	for _, fragment := range cicdFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// IsTest reports whether a path looks like a test file. It matches the
// directory segments test/tests/spec/specs and the filename markers
// test_, _test., .test. and .spec.
func IsTest(filePath string) bool {
	lower := strings.ToLower(filePath)
	for _, segment := range strings.Split(path.Dir(lower), "/") {
		switch segment {
		case "test", "tests", "spec", "specs":
			return true
		}
	}
	base := path.Base(lower)
	if strings.HasPrefix(base, "test_") {
		return true
	}
	return strings.Contains(base, "_test.") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.")
}

// IsReadme reports whether a file is a README.
func IsReadme(filePath string) bool {
	return strings.HasPrefix(strings.ToLower(path.Base(filePath)), "readme")
}

// IsDocs reports whether a path is documentation: a docs directory segment
// or a prose-format extension.
func IsDocs(filePath string) bool {
	lower := strings.ToLower(filePath)
	for _, segment := range strings.Split(path.Dir(lower), "/") {
		if segment == "docs" || segment == "doc" {
			return true
		}
	}
	switch path.Ext(lower) {
	case ".md", ".rst", ".adoc":
		return true
	}
	return false
}

// IsDependencyManifest reports whether a file is a recognized dependency
// manifest.
func IsDependencyManifest(filePath string) bool {
	return dependencyManifests[strings.ToLower(path.Base(filePath))]
}

type commentStyle struct {
	line       string
	blockStart string
	blockEnd   string
}

var (
	hashStyle   = commentStyle{line: "#", blockStart: `"""`, blockEnd: `"""`}
	cStyle      = commentStyle{line: "//", blockStart: "/*", blockEnd: "*/"}
	markupStyle = commentStyle{blockStart: "<!--", blockEnd: "-->"}
	sqlStyle    = commentStyle{line: "--", blockStart: "/*", blockEnd: "*/"}
	// Unrecognized extensions fall back to hash line comments with C-style
	// block delimiters.
	defaultStyle = commentStyle{line: "#", blockStart: "/*", blockEnd: "*/"}
)

func styleFor(ext string) commentStyle {
	switch ext {
	case ".py", ".pyw", ".rb", ".sh", ".bash", ".zsh", ".r", ".pl", ".ex", ".exs", ".yml", ".yaml", ".toml":
		return hashStyle
	case ".c", ".h", ".cpp", ".cc", ".cxx", ".hpp", ".cs", ".java", ".js",
		".mjs", ".cjs", ".jsx", ".ts", ".tsx", ".go", ".rs", ".swift", ".kt",
		".kts", ".scala", ".php", ".dart", ".m", ".mm", ".groovy", ".css",
		".scss", ".less", ".proto", ".zig":
		return cStyle
	case ".html", ".htm", ".xml", ".vue", ".svelte", ".md":
		return markupStyle
	case ".sql":
		return sqlStyle
	default:
		return defaultStyle
	}
}

// CountLOC counts non-blank, non-comment lines. The comment stripper is a
// single-pass heuristic: a block comment opening and closing on one line is
// skipped as a one-line comment; an unclosed opener keeps the scanner inside
// a comment until a later line contains the end token. It is not a tokenizer
// and has no string-literal awareness.
func CountLOC(content []byte, filePath string) int {
	if len(content) == 0 || !utf8.Valid(content) {
		return 0
	}
	style := styleFor(strings.ToLower(path.Ext(filePath)))

	count := 0
	inBlock := false
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if inBlock {
			if strings.Contains(line, style.blockEnd) {
				inBlock = false
			}
			continue
		}
		if style.line != "" && strings.HasPrefix(line, style.line) {
			continue
		}
		if style.blockStart != "" && strings.HasPrefix(line, style.blockStart) {
			rest := line[len(style.blockStart):]
			if !strings.Contains(rest, style.blockEnd) {
				inBlock = true
			}
			continue
		}
		count++
	}
	return count
}
