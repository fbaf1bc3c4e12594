// Package reasoning runs the fixed tool pipeline that turns a user message
// into an auditable step trace and a synthesized answer fragment, and
// renders that trace and retrieved knowledge as prompt context.
//
// The pipeline never branches on model output. Per run it:
//
//  1. records an analysis thought;
//  2. searches the tenant's knowledge;
//  3. loads conversation history when a conversation is given;
//  4. loads the tenant profile;
//  5. evaluates the first arithmetic expression found in the message;
//  6. saves a memory when the message asks to remember a key and value;
//  7. synthesizes the final answer.
//
// Any tool failure stops the run, appends one failed step and replaces the
// answer with ErrorAnswer.
package reasoning
