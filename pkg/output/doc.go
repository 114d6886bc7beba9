// Package output renders import results and archive listings for the
// terminal.
//
// Views are plain structs built from a migration.Manager. Text output runs
// the views through the embedded Go templates, whose "style" function
// applies the lipgloss styles declared in styles.yaml:
//
//	{{style "Success" "Import completed"}}
//
// Styles use adaptive colors that follow light and dark terminal themes.
// JSON and YAML output encode the views directly.
package output
