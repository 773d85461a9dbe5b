/*
Package survey defines the ordered, static list of steps a survey session walks through.

Definitions are loaded from YAML (the default exit-readiness survey is embedded) or
assembled with the fluent Builder, and are validated before use:

  - the first step is the only Welcome step;
  - the last step is the only Results step;
  - the step before Results is a Question step (finishing it opens the email gate);
  - every QuestionItem has a unique ID and at least one option.
*/
package survey
