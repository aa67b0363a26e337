package docs

var topics = []Topic{
	{
		Name:    "pipeline",
		Title:   "The Conversion Pipeline",
		Summary: "The eleven phases and what each one produces",
		Content: topicPipeline,
	},
	{
		Name:    "markers",
		Title:   "Font Signature Markers",
		Summary: "How font identity travels through the cleanup phases",
		Content: topicMarkers,
	},
	{
		Name:    "labels",
		Title:   "Structural Labels",
		Summary: "Heading, body, code, callout and skip labels",
		Content: topicLabels,
	},
	{
		Name:    "callouts",
		Title:   "Callout Detection",
		Summary: "GM notes, read-aloud boxes, and callout_config.json",
		Content: topicCallouts,
	},
	{
		Name:    "resume",
		Title:   "Resuming and Re-running",
		Summary: "--resume, --phase, --from-step and the state file",
		Content: topicResume,
	},
}

const topicPipeline = `The Conversion Pipeline
=======================

A conversion runs eleven phases, 0 through 10. Each phase reads the
artifacts of earlier phases from the output directory and writes its
own; nothing is carried in memory across a phase boundary.

    0  pre-flight analysis     metadata.json, confirmation
    1  image extraction        images/ + image-manifest.json
    2  image removal           preprocessed/<name>-no-images.pdf
    3  TOC & font extraction   toc-extracted.txt, font-family-mapping.json
    4  text extraction         <name>-phase4.md (marker-rich)
    5  character cleanup       <name>-phase5.md
    6  word cleanup            <name>-phase6.md
    7  structural detection    updated font-family-mapping.json
    8  hierarchy application   <name>-phase8.md  <- the deliverable
    9  markdown lint           warnings only
    10 conversion report       conversion-report.md

State is written to .state.json after every step, atomically. Interrupt
the run whenever you like; 'pdf-convert --resume <dir>' continues from
the last completed step.`

const topicMarkers = `Font Signature Markers
======================

Phase 4 wraps every extracted text run in a marker:

    «sig007:The Haunted Lighthouse»

sig007 identifies the font tuple (family, size, weight, style) the run
was set in. The cleanup phases rewrite text freely but never touch a
marker's id or delimiters, so phase 8 still knows which font every word
carried — that is what turns fonts into headings.

Guillemets that occur in the source text are escaped as \« and \»
before markers are introduced and restored in phase 8.`

const topicLabels = `Structural Labels
=================

Each font signature in font-family-mapping.json carries a label:

    H1..H4          heading levels
    body            regular prose
    code            monospace, rendered as code spans or fences
    callout_*       blockquote callouts (callout_gm,
                    callout_read_aloud, callout_sidebar, custom)
    quote           italic blockquote
    quote_author    attribution line
    skip            dropped entirely (page numbers, footer chrome)

Labels are inferred in phase 3 from the document title, the TOC, and
font-size heuristics, refined in phase 7, and presented for review at
step 7.10. Edit the label field in the mapping file during the review —
your edits always win. To relabel after a finished run, edit the file
and re-run phase 8 alone:

    pdf-convert --phase 8 <output-dir>`

const topicCallouts = `Callout Detection
=================

Callouts are found by text boundaries, not fonts. Built-in trigger
phrases ("Keeper's Note:", "GM Note:", "Read Aloud:") mark the
signatures of the lines that carry them. For publishers with explicit
box boundaries, callout_config.json defines ranges:

    [
      {"start_text": "Keeper's Note:",
       "end_text": "End of Note",
       "label": "callout_gm"}
    ]

Every span between start_text and end_text is labeled. In phase 8 a
callout renders as a '>' blockquote that runs until a heading, a
different callout, its end_text, or end of file. Add trigger phrases
for your system with --gm-keyword.`

const topicResume = `Resuming and Re-running
=======================

.state.json records the current phase and step, each phase's results,
and the run status. It is written atomically after every step, so an
interrupted conversion always resumes cleanly:

    pdf-convert --resume <output-dir>

Completed phases are skipped on resume; their outputs must still exist
on disk or the resume is refused with the phase to re-run.

Selective re-execution:

    pdf-convert --phase 8 <output-dir>      # one phase, fresh
    pdf-convert --from-step 5.3 <output-dir> # phase 5 from step 3 on

--phase re-runs a single phase and leaves every other record alone.
--from-step trusts the outputs of the earlier steps of that phase and
continues through the rest of the pipeline.

'pdf-convert --status <dir>' prints the phase table without touching
anything.`
