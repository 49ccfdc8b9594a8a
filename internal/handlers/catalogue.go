// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
package handlers

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "taskagent/internal/errors"
	"taskagent/internal/ops"
)

var fieldValidator = validator.New(validator.WithRequiredStructEnabled())

// validField checks a string argument against a validator tag when present.
func validField(name, tag, constraint string) ops.Rule {
	return func(args ops.Args) error {
		if !args.Has(name) {
			return nil
		}
		if err := fieldValidator.Var(args.String(name), tag); err != nil {
			return apperrors.Invalid(name, constraint)
		}
		return nil
	}
}

// scpRemote matches the git "user@host:path" shorthand.
var scpRemote = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[^/\\-][^\\]*$`)

// remoteRepo accepts only network git remotes, so a clone can never read
// repositories from the local filesystem.
func remoteRepo(name string) ops.Rule {
	return func(args ops.Args) error {
		if !args.Has(name) {
			return nil
		}
		repo := strings.TrimSpace(args.String(name))
		if scpRemote.MatchString(repo) {
			return nil
		}
		if err := fieldValidator.Var(repo, "url"); err == nil {
			if u, err := url.Parse(repo); err == nil && u.Host != "" {
				switch strings.ToLower(u.Scheme) {
				case "https", "http", "ssh", "git":
					return nil
				}
			}
		}
		return apperrors.Invalid(name, "must be an https, http, ssh or git@host: repository URL")
	}
}

func atMost(name string, max int64) ops.Rule {
	return func(args ops.Args) error {
		if v, ok := args.Int(name); ok && v > max {
			return apperrors.Invalid(name, fmt.Sprintf("must be at most %d", max))
		}
		return nil
	}
}

func nonEmptyList(name string) ops.Rule {
	return func(args ops.Args) error {
		if args.Has(name) && len(args.Strings(name)) == 0 {
			return apperrors.Invalid(name, "must contain at least one item")
		}
		return nil
	}
}

func str(name, desc string) ops.Param {
	return ops.Param{Name: name, Type: ops.TypeString, Description: desc, Required: true}
}

func opt(p ops.Param) ops.Param {
	p.Required = false
	return p
}

func file(name, desc string) ops.Param {
	return ops.Param{Name: name, Type: ops.TypeString, Description: desc, Required: true, Path: ops.PathFile}
}

func dir(name, desc string) ops.Param {
	return ops.Param{Name: name, Type: ops.TypeString, Description: desc, Required: true, Path: ops.PathDir}
}

func enum(name, desc string, values ...string) ops.Param {
	return ops.Param{Name: name, Type: ops.TypeString, Description: desc, Required: true, Enum: values}
}

func integer(name, desc string) ops.Param {
	return ops.Param{Name: name, Type: ops.TypeInteger, Description: desc, Required: true}
}

func list(name, desc string, item ops.Param) ops.Param {
	return ops.Param{Name: name, Type: ops.TypeArray, Description: desc, Required: true, Items: &item}
}

// catalogue lists every operation offered to the model, in the order the
// model sees them.
func catalogue(e *env) []ops.Spec {
	return []ops.Spec{
		{
			Name:        "read_file",
			Description: "Read a text file and return its content.",
			Params: []ops.Param{
				file("file_path", "Path of the file to read, under data/."),
			},
			Handler: ops.HandlerFunc(e.readFile),
		},
		{
			Name:        "write_file",
			Description: "Write text content to a file, creating or replacing it.",
			Params: []ops.Param{
				file("file_path", "Path of the file to write, under data/."),
				str("content", "Text content to write."),
			},
			Handler: ops.HandlerFunc(e.writeFile),
		},
		{
			Name:        "list_directory",
			Description: "List the entries of a directory.",
			Params: []ops.Param{
				dir("directory", "Directory to list, under data/."),
				opt(ops.Param{Name: "recursive", Type: ops.TypeBoolean, Description: "List subdirectories too."}),
			},
			Handler: ops.HandlerFunc(e.listDirectory),
		},
		{
			Name:        "online_script_runner",
			Description: "Run a Python script from a URL with uv, passing an email argument and the data root.",
			Params: []ops.Param{
				str("url", "URL of the script to run."),
				str("email", "Email address passed to the script."),
				opt(str("package", "Extra package the script needs.")),
			},
			Check: ops.ChainRules(
				validField("url", "http_url", "must be an http(s) URL"),
				validField("email", "email", "must be an email address"),
			),
			Handler: ops.HandlerFunc(e.onlineScriptRunner),
		},
		{
			Name:        "format_file",
			Description: "Format a file in place with a specific version of prettier.",
			Params: []ops.Param{
				file("file_path", "Path of the file to format, under data/."),
				str("prettier_version", "The version of prettier to use, for example 3.4.2."),
			},
			Handler: ops.HandlerFunc(e.formatFile),
		},
		{
			Name:        "count_dates",
			Description: "Count the occurrences of a specific weekday, date or month in a list of dates in a file.",
			Params: []ops.Param{
				file("input_file", "Path to the file containing the dates, one per line or per cell."),
				file("output_file", "Path to the file to write the count to."),
				enum("date_part", "The part of the date to count.", "weekday", "date", "month"),
				str("value_to_count", "Full weekday name (Monday), date as YYYY-MM-DD, or full month name (January)."),
			},
			Check:   ops.NonEmpty("value_to_count"),
			Handler: ops.HandlerFunc(e.countDates),
		},
		{
			Name:        "sort_contacts",
			Description: "Sort a JSON array of contacts by one or more fields, each with its own direction.",
			Params: []ops.Param{
				file("input_file", "Path to the JSON file containing the array of contacts."),
				file("output_file", "Path to the file to write the sorted array to."),
				list("sort_fields", "Field names to sort by, in priority order.", ops.Param{Type: ops.TypeString}),
				list("sort_direction", "Direction for each sort field; same length as sort_fields.",
					ops.Param{Type: ops.TypeString, Enum: []string{"asc", "desc"}}),
			},
			Check: ops.ChainRules(
				nonEmptyList("sort_fields"),
				ops.SameLength("sort_fields", "sort_direction"),
			),
			Handler: ops.HandlerFunc(e.sortContacts),
		},
		{
			Name:        "extract_log_info",
			Description: "Extract lines from .log files selected by modification date and sort order, writing them to a file.",
			Params: []ops.Param{
				dir("log_directory", "Directory containing the .log files."),
				enum("sort_order", "How to order the files before extraction.",
					"newest", "oldest", "name_asc", "name_desc", "none", "size_asc", "size_desc"),
				file("output_file", "Path to the file to write the extracted lines to."),
				enum("extraction_type", "What to extract from each file.",
					"last", "first", "all", "line_number", "regex", "lines_range"),
				enum("date_filter_type", "Filter files by modification date.",
					"before", "after", "on", "between", "none"),
				opt(str("date_filter_value", "A date (YYYY-MM-DD), or two dates separated by a comma for 'between'.")),
				opt(integer("num_files", "Number of files to process after sorting.")),
				opt(integer("line_number", "Line to extract (1-based) for 'line_number'.")),
				opt(integer("lines_range_start", "First line (1-based) for 'lines_range'.")),
				opt(integer("lines_range_end", "Last line (1-based, inclusive) for 'lines_range'.")),
				opt(str("regex_pattern", "Regular expression for 'regex'.")),
			},
			Check: ops.ChainRules(
				ops.RequireWhen("date_filter_type", "before", "date_filter_value"),
				ops.RequireWhen("date_filter_type", "after", "date_filter_value"),
				ops.RequireWhen("date_filter_type", "on", "date_filter_value"),
				ops.RequireWhen("date_filter_type", "between", "date_filter_value"),
				ops.RequireWhen("extraction_type", "line_number", "line_number"),
				ops.RequireWhen("extraction_type", "lines_range", "lines_range_start", "lines_range_end"),
				ops.RequireWhen("extraction_type", "regex", "regex_pattern"),
				ops.Positive("num_files"),
				ops.Positive("line_number"),
				ops.Positive("lines_range_start"),
				ops.Positive("lines_range_end"),
			),
			Handler: ops.HandlerFunc(e.extractLogInfo),
		},
		{
			Name:        "extract_markdown_headers",
			Description: "Find all Markdown files in a directory, pick headers of one level from each and write a JSON index of file to title.",
			Params: []ops.Param{
				dir("md_directory", "Directory containing the .md files."),
				file("output_file", "Path of the JSON index to write."),
				enum("header_level", "Header level to extract.", "h1", "h2", "h3", "h4", "h5", "h6"),
				enum("header_occurrence", "Which occurrence to keep.", "first", "nth", "last", "all"),
				opt(integer("n_value", "Occurrence (1-based) for 'nth'.")),
			},
			Check: ops.ChainRules(
				ops.RequireWhen("header_occurrence", "nth", "n_value"),
				ops.Positive("n_value"),
			),
			Handler: ops.HandlerFunc(e.extractMarkdownHeaders),
		},
		{
			Name:        "extract_information",
			Description: "Extract information described by an instruction from a text, CSV, JSON, XLSX or DOCX file.",
			Params: []ops.Param{
				file("input_file", "Path of the file to read."),
				file("output_file", "Path of the file to write the extracted values to, one per line."),
				str("extraction_instruction", "What to extract, for example 'the sender email address'."),
			},
			Handler: ops.HandlerFunc(e.extractInformation),
		},
		{
			Name:        "process_image",
			Description: "Read the text in an image and extract the information described by an instruction.",
			Params: []ops.Param{
				file("image_path", "Path of the image."),
				file("output_file", "Path of the file to write the result to."),
				str("processing_instruction", "What to extract from the image."),
			},
			Handler: ops.HandlerFunc(e.processImage),
		},
		{
			Name:        "transcribe_audio",
			Description: "Transcribe an audio file to text.",
			Params: []ops.Param{
				file("audio_path", "Path of the audio file."),
				file("output_file", "Path of the transcript to write."),
			},
			Handler: ops.HandlerFunc(e.transcribeAudio),
		},
		{
			Name:        "find_similar_texts",
			Description: "Find the most similar or most dissimilar pair of texts in a file using embeddings.",
			Params: []ops.Param{
				file("input_file", "Path of the file holding the texts."),
				file("output_file", "Path of the file to write the pair to."),
				enum("find_type", "Which pair to find.", "most_similar", "most_dissimilar"),
				enum("input_format", "How texts are laid out in the input.", "lines", "csv", "space_separated"),
				enum("output_format", "How to write the pair.", "comma_separated", "one_per_line", "space_separated"),
			},
			Handler: ops.HandlerFunc(e.findSimilarTexts),
		},
		{
			Name:        "query_database",
			Description: "Run a read-only SQL query on a SQLite database and write the result.",
			Params: []ops.Param{
				file("db_path", "Path of the SQLite database (.db, .sqlite, .sqlite3)."),
				file("output_file", "Path of the file to write the result to."),
				str("query", "A single SELECT statement; use ? placeholders for params."),
				opt(list("params", "Values bound to the ? placeholders, in order.", ops.Param{Type: ops.TypeString})),
				enum("output_type", "How to write the result.", "single_value", "json", "csv", "tsv"),
			},
			Check:   ops.NonEmpty("query"),
			Handler: ops.HandlerFunc(e.queryDatabase),
		},
		{
			Name:        "fetch_and_save_data",
			Description: "Download data from a URL and save it in a directory.",
			Params: []ops.Param{
				str("api_url", "URL to fetch."),
				dir("output_path", "Directory to save the data in."),
				opt(str("filename", "File name to save as; derived from the content type when omitted.")),
			},
			Check:   validField("api_url", "http_url", "must be an http(s) URL"),
			Handler: ops.HandlerFunc(e.fetchAndSaveData),
		},
		{
			Name:        "clone_git_repo",
			Description: "Clone a git repository into a directory.",
			Params: []ops.Param{
				str("repo_url", "URL of the repository."),
				dir("output_path", "Directory to clone into."),
			},
			Check:   remoteRepo("repo_url"),
			Handler: ops.HandlerFunc(e.cloneGitRepo),
		},
		{
			Name:        "scrape_website",
			Description: "Scrape elements from a web page by CSS selector and save them as JSON.",
			Params: []ops.Param{
				str("url", "URL of the page."),
				dir("output_path", "Directory to save the JSON file in."),
				list("scrape_target", "Elements to scrape.", ops.Param{
					Type: ops.TypeObject,
					Fields: []ops.Param{
						str("element", "CSS selector of the elements."),
						opt(str("attribute", "Attribute to read instead of the text.")),
					},
				}),
				opt(str("filename", "File name of the JSON output; scraped_data.json when omitted.")),
			},
			Check:   validField("url", "http_url", "must be an http(s) URL"),
			Handler: ops.HandlerFunc(e.scrapeWebsite),
		},
		{
			Name:        "compress_image",
			Description: "Re-encode an image with a lower quality to reduce its size.",
			Params: []ops.Param{
				file("image_path", "Path of the image."),
				file("output_file", "Path of the compressed image."),
				integer("quality", "JPEG quality from 1 to 100."),
			},
			Check:   ops.ChainRules(ops.Positive("quality"), atMost("quality", 100)),
			Handler: ops.HandlerFunc(e.compressImage),
		},
		{
			Name:        "resize_image",
			Description: "Resize an image to the given dimensions.",
			Params: []ops.Param{
				file("image_path", "Path of the image."),
				file("output_file", "Path of the resized image."),
				integer("width", "Width in pixels."),
				integer("height", "Height in pixels."),
			},
			Check:   ops.ChainRules(ops.Positive("width"), ops.Positive("height")),
			Handler: ops.HandlerFunc(e.resizeImage),
		},
		{
			Name:        "convert_markdown_to_html",
			Description: "Convert a Markdown file to HTML.",
			Params: []ops.Param{
				file("markdown_path", "Path of the Markdown file."),
				file("output_file", "Path of the HTML file to write."),
			},
			Handler: ops.HandlerFunc(e.convertMarkdownToHTML),
		},
		{
			Name:        "filter_csv_to_json_api",
			Description: "Filter the rows of a CSV file on a column value and serve them as JSON at /api/{api_endpoint}.",
			Params: []ops.Param{
				file("csv_path", "Path of the CSV file."),
				str("filter_column", "Column to filter on."),
				str("filter_value", "Value the column must equal."),
				str("api_endpoint", "Name of the endpoint to create."),
			},
			Check:   ops.ChainRules(ops.NonEmpty("filter_column"), ops.NonEmpty("api_endpoint")),
			Handler: ops.HandlerFunc(e.filterCSVToJSONAPI),
		},
		{
			Name:        "reject_task",
			Description: "Reject a task that cannot or must not be performed, such as deleting data or reaching outside data/.",
			Params: []ops.Param{
				str("reason", "Why the task is rejected."),
			},
			Handler: ops.HandlerFunc(e.rejectTask),
		},
	}
}
